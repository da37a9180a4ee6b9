package ir

// Image is an RGB raster with interleaved float32 channels in [0, 1].
// Pix has length Width*Height*3, row-major from the top-left pixel.
type Image struct {
	Width  int
	Height int
	Pix    []float32
}

// NewImage allocates a black image.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]float32, width*height*3)}
}

// At returns the colour of pixel (x, y).
func (im *Image) At(x, y int) [3]float32 {
	i := (y*im.Width + x) * 3
	return [3]float32{im.Pix[i], im.Pix[i+1], im.Pix[i+2]}
}

// Set writes the colour of pixel (x, y).
func (im *Image) Set(x, y int, c [3]float32) {
	i := (y*im.Width + x) * 3
	im.Pix[i], im.Pix[i+1], im.Pix[i+2] = c[0], c[1], c[2]
}

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	out := &Image{Width: im.Width, Height: im.Height, Pix: make([]float32, len(im.Pix))}
	copy(out.Pix, im.Pix)
	return out
}

// Mask is a single-channel coverage raster in [0, 1].
type Mask struct {
	Width  int
	Height int
	Pix    []float32
}

// NewMask allocates an empty mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// At returns the coverage of pixel (x, y).
func (m *Mask) At(x, y int) float32 {
	return m.Pix[y*m.Width+x]
}

// Set writes the coverage of pixel (x, y).
func (m *Mask) Set(x, y int, v float32) {
	m.Pix[y*m.Width+x] = v
}
