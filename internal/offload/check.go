package offload

import "fmt"

// CheckGemm applies the column-major BLAS argument rules to a GEMM call.
// Parameter numbers in messages follow the dgemm argument order
// (transa=1 ... ldc=13).
func CheckGemm(tA, tB Transpose, m, n, k int, a *Buffer, lda int, b *Buffer, ldb int, c *Buffer, ldc int) error {
	bad := func(pos int, name string, v any) error {
		return &Fault{
			Status:  StatusInvalidValue,
			Op:      "gemm",
			Message: fmt.Sprintf("parameter %d (%s) had an illegal value %v", pos, name, v),
		}
	}
	if tA != NoTrans && tA != Trans {
		return bad(1, "transa", tA)
	}
	if tB != NoTrans && tB != Trans {
		return bad(2, "transb", tB)
	}
	if m < 0 {
		return bad(3, "m", m)
	}
	if n < 0 {
		return bad(4, "n", n)
	}
	if k < 0 {
		return bad(5, "k", k)
	}
	rowsA, colsA := m, k
	if tA == Trans {
		rowsA, colsA = k, m
	}
	rowsB, colsB := k, n
	if tB == Trans {
		rowsB, colsB = n, k
	}
	if lda < max(1, rowsA) {
		return bad(8, "lda", lda)
	}
	if ldb < max(1, rowsB) {
		return bad(10, "ldb", ldb)
	}
	if ldc < max(1, m) {
		return bad(13, "ldc", ldc)
	}
	if m == 0 || n == 0 {
		return nil
	}
	for _, s := range []struct {
		pos            int
		name           string
		buf            *Buffer
		ld, rows, cols int
	}{
		{7, "a", a, lda, rowsA, colsA},
		{9, "b", b, ldb, rowsB, colsB},
		{12, "c", c, ldc, m, n},
	} {
		if s.buf == nil {
			return bad(s.pos, s.name, "<nil>")
		}
		if s.cols == 0 {
			continue
		}
		if need := s.ld*(s.cols-1) + s.rows; s.buf.Len() < need {
			return &Fault{
				Status:  StatusInvalidBufferSize,
				Op:      "gemm",
				Message: fmt.Sprintf("buffer %s holds %d elements, need %d", s.name, s.buf.Len(), need),
			}
		}
	}
	if c.Access() != ReadWrite {
		return &Fault{Status: StatusInvalidOperation, Op: "gemm", Message: "output buffer c is read-only"}
	}
	return nil
}
