package audio

import "math"

// DefaultVoiceThreshold is the normalized RMS above which a window counts as voiced.
const DefaultVoiceThreshold = 0.02

// fullScale normalizes RMS energy to the 0..1 range.
const fullScale = 32768.0

// LevelStats summarizes the signal level of a clip
type LevelStats struct {
	Windows       int     `json:"windows"`
	VoicedWindows int     `json:"voiced_windows"`
	Peak          int16   `json:"peak"`
	RMS           float64 `json:"rms"` // normalized 0..1 over the whole clip
}

// VoicedRatio returns the fraction of windows above the voice threshold
func (s LevelStats) VoicedRatio() float64 {
	if s.Windows == 0 {
		return 0
	}
	return float64(s.VoicedWindows) / float64(s.Windows)
}

// LevelMeter accumulates energy over fixed windows of PCM16 samples and
// classifies each window as voiced or silent by its RMS energy.
type LevelMeter struct {
	windowSize int
	threshold  float64

	window     []int16
	stats      LevelStats
	sumSquares float64
	samples    int64
}

// NewLevelMeter creates a meter. Non-positive arguments select defaults
// (512-sample windows, DefaultVoiceThreshold).
func NewLevelMeter(windowSize int, threshold float64) *LevelMeter {
	if windowSize <= 0 {
		windowSize = 512
	}
	if threshold <= 0 {
		threshold = DefaultVoiceThreshold
	}
	return &LevelMeter{
		windowSize: windowSize,
		threshold:  threshold,
		window:     make([]int16, 0, windowSize),
	}
}

// Add feeds samples to the meter. A trailing partial window is held until
// more samples arrive or Stats is called.
func (m *LevelMeter) Add(samples []int16) {
	for _, s := range samples {
		v := float64(s)
		m.sumSquares += v * v
		m.samples++

		if abs := absInt16(s); abs > m.stats.Peak {
			m.stats.Peak = abs
		}

		m.window = append(m.window, s)
		if len(m.window) == m.windowSize {
			m.closeWindow()
		}
	}
}

// Stats returns the summary so far, counting any partial window
func (m *LevelMeter) Stats() LevelStats {
	stats := m.stats
	if len(m.window) > 0 {
		stats.Windows++
		if windowRMS(m.window) >= m.threshold {
			stats.VoicedWindows++
		}
	}
	if m.samples > 0 {
		stats.RMS = math.Sqrt(m.sumSquares/float64(m.samples)) / fullScale
	}
	return stats
}

func (m *LevelMeter) closeWindow() {
	m.stats.Windows++
	if windowRMS(m.window) >= m.threshold {
		m.stats.VoicedWindows++
	}
	m.window = m.window[:0]
}

func windowRMS(samples []int16) float64 {
	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}
	return math.Sqrt(energy/float64(len(samples))) / fullScale
}

func absInt16(s int16) int16 {
	if s == math.MinInt16 {
		return math.MaxInt16
	}
	if s < 0 {
		return -s
	}
	return s
}
