package live

import "io"

// Format describes PCM16 little-endian audio.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) isZero() bool { return f.SampleRate == 0 && f.Channels == 0 }

// wireFormat is what the Live API expects.
var wireFormat = Format{SampleRate: 16000, Channels: 1}

// converter turns captured audio into wireFormat.
type converter struct {
	src  io.ReadCloser
	from Format

	rs  *resampler
	in  []byte
	rem []byte // partial frame carried to the next read
	out []byte // converted bytes not yet returned
}

func newConverter(src io.ReadCloser, from Format) *converter {
	if from.Channels <= 0 {
		from.Channels = 1
	}
	if from.SampleRate <= 0 {
		from.SampleRate = wireFormat.SampleRate
	}
	return &converter{
		src:  src,
		from: from,
		rs:   newResampler(from.SampleRate, wireFormat.SampleRate),
		in:   make([]byte, 8192),
	}
}

func (c *converter) Read(p []byte) (int, error) {
	for len(c.out) == 0 {
		n, err := c.src.Read(c.in)
		if n > 0 {
			c.convert(c.in[:n])
		}
		if err != nil {
			if len(c.out) == 0 {
				return 0, err
			}
			break
		}
	}
	n := copy(p, c.out)
	c.out = c.out[n:]
	return n, nil
}

func (c *converter) convert(data []byte) {
	buf := append(c.rem, data...)
	frame := 2 * c.from.Channels
	whole := len(buf) - len(buf)%frame
	c.rem = append([]byte(nil), buf[whole:]...)

	samples := bytesToSamples(buf[:whole])
	samples = downmix(samples, c.from.Channels)
	samples = c.rs.push(samples)
	c.out = append(c.out, samplesToBytes(samples)...)
}

func (c *converter) Close() error {
	return c.src.Close()
}

// resampler converts a stream between sample rates by linear
// interpolation, which is adequate for speech. Its position carries across
// calls so chunk boundaries do not drop or repeat samples.
type resampler struct {
	ratio float64 // source samples per output sample
	pos   float64 // next output position, relative to src[0]
	src   []int16 // unconsumed source samples
}

func newResampler(fromRate, toRate int) *resampler {
	return &resampler{ratio: float64(fromRate) / float64(toRate)}
}

func (r *resampler) push(samples []int16) []int16 {
	if r.ratio == 1 {
		return samples
	}
	r.src = append(r.src, samples...)

	var out []int16
	for {
		idx := int(r.pos)
		if idx+1 >= len(r.src) {
			break
		}
		frac := r.pos - float64(idx)
		s1, s2 := float64(r.src[idx]), float64(r.src[idx+1])
		out = append(out, int16(s1+frac*(s2-s1)))
		r.pos += r.ratio
	}

	// Keep the sample the next output interpolates from.
	drop := int(r.pos)
	if drop > len(r.src)-1 {
		drop = len(r.src) - 1
	}
	if drop > 0 {
		r.src = append(r.src[:0], r.src[drop:]...)
		r.pos -= float64(drop)
	}
	return out
}

// downmix averages interleaved channels to mono.
func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels))
	}
	return mono
}

func bytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}
