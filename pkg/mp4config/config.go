// Package mp4config extracts the H.264 codec configuration from an mp4
// container or from raw parameter sets.
package mp4config

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/telecast/pkg/media"
)

const (
	nalTypeSPS = 7
	nalTypePPS = 8
)

var (
	// ErrNoVideoTrack is returned when the container has no H.264 video track.
	ErrNoVideoTrack = errors.New("mp4config: no h264 video track")

	// ErrMissingParameterSets is returned when SPS or PPS cannot be found.
	ErrMissingParameterSets = errors.New("mp4config: missing parameter sets")
)

// FromFile reads the codec configuration from the mp4 file at path.
func FromFile(path string) (media.CodecConfiguration, error) {
	f, err := os.Open(path)
	if err != nil {
		return media.CodecConfiguration{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return FromReader(f)
}

// FromBytes reads the codec configuration from mp4 data.
func FromBytes(data []byte) (media.CodecConfiguration, error) {
	return FromReader(bytes.NewReader(data))
}

// FromReader decodes the container and returns the configuration of the
// first H.264 video track.
func FromReader(r io.Reader) (media.CodecConfiguration, error) {
	mp4File, err := mp4.DecodeFile(r)
	if err != nil {
		return media.CodecConfiguration{}, fmt.Errorf("decode mp4: %w", err)
	}

	var traks []*mp4.TrakBox
	if mp4File.Init != nil && mp4File.Init.Moov != nil {
		traks = append(traks, mp4File.Init.Moov.Traks...)
	}
	if mp4File.Moov != nil {
		traks = append(traks, mp4File.Moov.Traks...)
	}

	for _, trak := range traks {
		avcC := avcConfig(trak)
		if avcC == nil {
			continue
		}
		if len(avcC.SPSnalus) == 0 || len(avcC.PPSnalus) == 0 {
			return media.CodecConfiguration{}, ErrMissingParameterSets
		}
		return FromParameterSets(avcC.SPSnalus[0], avcC.PPSnalus[0])
	}
	return media.CodecConfiguration{}, ErrNoVideoTrack
}

func avcConfig(trak *mp4.TrakBox) *mp4.AvcCBox {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
		return nil
	}
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return nil
	}
	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		switch child.Type() {
		case "avc1", "avc3":
			if vse, ok := child.(*mp4.VisualSampleEntryBox); ok && vse.AvcC != nil {
				return vse.AvcC
			}
		}
	}
	return nil
}

// FromParameterSets builds a configuration from SPS and PPS NAL units
// (without start codes).
func FromParameterSets(sps, pps []byte) (media.CodecConfiguration, error) {
	if len(pps) == 0 {
		return media.CodecConfiguration{}, fmt.Errorf("%w: empty PPS", ErrMissingParameterSets)
	}
	profile, err := ProfileLevelID(sps)
	if err != nil {
		return media.CodecConfiguration{}, err
	}
	return media.CodecConfiguration{
		ProfileLevelID: profile,
		SPS:            base64.StdEncoding.EncodeToString(sps),
		PPS:            base64.StdEncoding.EncodeToString(pps),
	}, nil
}

// ProfileLevelID returns the lowercase hex of SPS bytes 1..3 (profile_idc,
// constraint flags, level_idc).
func ProfileLevelID(sps []byte) (string, error) {
	if len(sps) < 4 {
		return "", fmt.Errorf("%w: SPS too short (%d bytes)", ErrMissingParameterSets, len(sps))
	}
	if sps[0]&0x1F != nalTypeSPS {
		return "", fmt.Errorf("%w: NAL type %d is not SPS", ErrMissingParameterSets, sps[0]&0x1F)
	}
	return hex.EncodeToString(sps[1:4]), nil
}

// ParameterSets decodes the base64 SPS and PPS of cfg.
func ParameterSets(cfg media.CodecConfiguration) (sps, pps []byte, err error) {
	sps, err = base64.StdEncoding.DecodeString(cfg.SPS)
	if err != nil {
		return nil, nil, fmt.Errorf("decode SPS: %w", err)
	}
	pps, err = base64.StdEncoding.DecodeString(cfg.PPS)
	if err != nil {
		return nil, nil, fmt.Errorf("decode PPS: %w", err)
	}
	return sps, pps, nil
}
