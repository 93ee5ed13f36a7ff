package media

// audioQualities and videoQualities are the fixed accepted sets per kind.
var (
	audioQualities = map[Quality]struct{}{
		QualityAudioHigh:   {},
		QualityAudioMedium: {},
		QualityAudioLow:    {},
	}
	videoQualities = map[Quality]struct{}{
		QualityVideo1080p: {},
		QualityVideo720p:  {},
		QualityVideo480p:  {},
		QualityVideoBest:  {},
	}
)

// ParseQuality resolves a raw quality string for the given kind.
// Unrecognized or empty input falls back to the supplied default.
func ParseQuality(kind Kind, raw string, fallback Quality) Quality {
	q := Quality(raw)
	switch kind {
	case KindAudio:
		if _, ok := audioQualities[q]; ok {
			return q
		}
	case KindVideo:
		if _, ok := videoQualities[q]; ok {
			return q
		}
	}
	return fallback
}

// ValidKind reports whether kind is one of the supported media classes.
func ValidKind(kind Kind) bool {
	return kind == KindAudio || kind == KindVideo
}
