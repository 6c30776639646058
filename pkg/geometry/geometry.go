// Package geometry computes the capture resolution that both the consumer
// display and the upstream hardware profile can support.
package geometry

import (
	"errors"
	"fmt"

	"github.com/user/telecast/pkg/media"
)

// Unknown marks a profile dimension that was not reported.
const Unknown = -1

// ErrInvalidGeometry is returned by Validate for boxes no encoder accepts.
var ErrInvalidGeometry = errors.New("geometry: invalid recording geometry")

// Resolve returns the recording geometry for a display of displayWidth x
// displayHeight scaled to scalePercent, bounded by the oriented profile box.
//
// When the profile does not fit the scaled display, the profile's bounding
// dimension is kept and the other one is derived from the scaled display ratio
// with integer arithmetic. Degenerate inputs are not rejected; a zero display
// dimension that would be used as a divisor yields the scaled box.
func Resolve(displayWidth, displayHeight, density int, landscape bool, profileWidth, profileHeight, scalePercent int) media.RecordingGeometry {
	width := displayWidth * scalePercent / 100
	height := displayHeight * scalePercent / 100
	scaled := media.RecordingGeometry{Width: width, Height: height, Density: density}

	if profileWidth == Unknown && profileHeight == Unknown {
		return scaled
	}

	frameWidth, frameHeight := profileWidth, profileHeight
	if !landscape {
		frameWidth, frameHeight = profileHeight, profileWidth
	}

	if frameWidth >= width && frameHeight >= height {
		return scaled
	}

	if landscape {
		if height == 0 {
			return scaled
		}
		frameWidth = width * frameHeight / height
	} else {
		if width == 0 {
			return scaled
		}
		frameHeight = height * frameWidth / width
	}

	return media.RecordingGeometry{Width: frameWidth, Height: frameHeight, Density: density}
}

// Validate reports whether g can be handed to an encoder.
func Validate(g media.RecordingGeometry) error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, g.Width, g.Height)
	}
	if g.Density < 0 {
		return fmt.Errorf("%w: density %d", ErrInvalidGeometry, g.Density)
	}
	return nil
}
