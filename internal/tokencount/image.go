package tokencount

import (
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"
)

var dataURIPattern = regexp.MustCompile(`^data:image/([a-zA-Z0-9.+-]+);base64,(.*)$`)

// ImageTokens decodes a data URI of the form
// "data:image/<type>;base64,<payload>" and returns the OpenAI vision
// tiling token cost for the decoded image's dimensions (spec.md §4.3,
// tested against scenario S3: 4096x3072 -> 765).
func ImageTokens(dataURI string) (int, error) {
	m := dataURIPattern.FindStringSubmatch(strings.TrimSpace(dataURI))
	if m == nil {
		return 0, fmt.Errorf("tokencount: not a base64 image data URI")
	}

	raw, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return 0, fmt.Errorf("tokencount: decoding image payload: %w", err)
	}

	cfg, _, err := image.DecodeConfig(strings.NewReader(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("tokencount: reading image dimensions: %w", err)
	}

	return tileCost(cfg.Width, cfg.Height), nil
}

// tileCost implements the two-step rescale (first to fit within 2048x2048,
// then unconditionally so the shorter side is 768) followed by a two-axis
// ceiling-division tile count. The product form ceil(w/512)*ceil(h/512) is
// used deliberately: a left-associative integer-division reading of the
// same formula is not equivalent and was a latent bug in the system this
// was modeled on.
func tileCost(width, height int) int {
	w, h := float64(width), float64(height)

	if max(w, h) > 2048 {
		scale := min(2048/w, 2048/h)
		w, h = w*scale, h*scale
	}

	scale := 768 / min(w, h)
	w, h = w*scale, h*scale

	tilesX := (int(w) + 511) / 512
	tilesY := (int(h) + 511) / 512
	return tilesX*tilesY*170 + 85
}
