package matrix

// Problem is one GEMM instance: C = Alpha * A * B + Beta * C, no transposes.
type Problem struct {
	Dims
	A     *Dense // M x N, A(i, j) = j + 1
	B     *Dense // N x P, B(i, j) = i + 1
	C     *Dense // M x P, overwritten by the backend
	Alpha float64
	Beta  float64
}

// Generate allocates A, B and C for d and fills A and B with the fixed
// index-derived pattern. C is not initialised beyond allocation.
func Generate(d Dims) (*Problem, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	a, err := NewDense(d.M, d.N)
	if err != nil {
		return nil, err
	}
	b, err := NewDense(d.N, d.P)
	if err != nil {
		return nil, err
	}
	c, err := NewDense(d.M, d.P)
	if err != nil {
		return nil, err
	}
	// a: every row holds its 1-based column number
	for j := 0; j < d.N; j++ {
		col := a.Data[j*a.Stride : j*a.Stride+d.M]
		for i := range col {
			col[i] = float64(j) + 1
		}
	}
	// b: every column holds the 1-based row number
	for j := 0; j < d.P; j++ {
		col := b.Data[j*b.Stride : j*b.Stride+d.N]
		for i := range col {
			col[i] = float64(i) + 1
		}
	}
	return &Problem{Dims: d, A: a, B: b, C: c, Alpha: 1, Beta: 0}, nil
}
