package audio

// ToMono はマルチチャンネルの PCM をチャンネル平均でモノラル化します。
func ToMono(p *PCM) *PCM {
	if p.Channels <= 1 {
		return p
	}
	frames := len(p.Samples) / p.Channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < p.Channels; c++ {
			sum += int(p.Samples[i*p.Channels+c])
		}
		out[i] = int16(sum / p.Channels)
	}
	return &PCM{SampleRate: p.SampleRate, Channels: 1, Samples: out}
}

// Resample はモノラル PCM を線形補間で rate へ変換します。
func Resample(p *PCM, rate int) *PCM {
	p = ToMono(p)
	if p.SampleRate == rate || len(p.Samples) == 0 {
		return p
	}

	ratio := float64(p.SampleRate) / float64(rate)
	n := int(int64(len(p.Samples)) * int64(rate) / int64(p.SampleRate))
	out := make([]int16, n)
	last := len(p.Samples) - 1

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = p.Samples[last]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(p.Samples[idx]), float64(p.Samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return &PCM{SampleRate: rate, Channels: 1, Samples: out}
}

// Normalize16k は認識サービス向けに 16kHz モノラルへ揃えます。
func Normalize16k(p *PCM) *PCM {
	return Resample(p, TargetSampleRate)
}
