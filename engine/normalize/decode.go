package normalize

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

// minConfidence is the detector confidence (0-100) below which the default
// encoding is forced.
const minConfidence = 70

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts raw bytes to a UTF-8 string. Valid UTF-8 is used as is.
// Otherwise the encoding is detected; low-confidence detections fall back to
// the default encoding, and if decoding still fails invalid bytes are
// replaced with U+FFFD.
func (n *Normalizer) Decode(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(raw) == 0 {
		return "", nil
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	name := n.defaultEncoding
	if charset, confidence, err := n.detect(raw); err == nil && confidence >= minConfidence {
		name = charset
	} else if err == nil {
		n.log.Debug("normalize: low confidence detection", "charset", charset, "confidence", confidence)
	}

	if s, ok := decodeAs(name, raw); ok {
		// UTF-16/32 decoders keep the byte order mark as U+FEFF.
		return strings.TrimPrefix(s, "\uFEFF"), nil
	}
	n.log.Warn("normalize: decoding with replacement", "encoding", name)
	s := strings.ToValidUTF8(string(raw), "\uFFFD")
	if s == "" {
		return "", ErrDecode
	}
	return s, nil
}

func detectCharset(raw []byte) (string, int, error) {
	res, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil {
		return "", 0, err
	}
	return res.Charset, res.Confidence, nil
}

func decodeAs(name string, raw []byte) (string, bool) {
	if strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		if !utf8.Valid(raw) {
			return "", false
		}
		return string(raw), true
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", false
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	return string(out), true
}
