// Package mp4test builds small H.264 mp4 containers for tests.
package mp4test

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/mp4"
)

// Baseline profile, level 3.1 parameter sets.
var (
	SPS = []byte{0x67, 0x42, 0xc0, 0x1f, 0xda, 0x01, 0x40, 0x16, 0xec, 0x04, 0x40}
	PPS = []byte{0x68, 0xce, 0x3c, 0x80}

	// IDR is a key frame slice NAL unit.
	IDR = []byte{0x65, 0x88, 0x84, 0x00, 0x33, 0xff}
)

// Container returns ftyp, moov, moof and mdat boxes for one video track
// whose avcC carries sps and pps. Each sample is a single NAL unit stored
// with a 4-byte length prefix.
func Container(sps, pps []byte, width, height int, samples ...[]byte) ([]byte, error) {
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(90000, "video", "und")
	trak := init.Moov.Trak

	avcC := &mp4.AvcCBox{DecConfRec: avc.DecConfRec{
		AVCProfileIndication: sps[1],
		ProfileCompatibility: sps[2],
		AVCLevelIndication:   sps[3],
		SPSnalus:             [][]byte{sps},
		PPSnalus:             [][]byte{pps},
		NoTrailingInfo:       true,
	}}
	trak.Mdia.Minf.Stbl.Stsd.AddChild(mp4.CreateVisualSampleEntryBox("avc1", uint16(width), uint16(height), avcC))
	trak.Tkhd.Width = mp4.Fixed32(width << 16)
	trak.Tkhd.Height = mp4.Fixed32(height << 16)

	var buf bytes.Buffer
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41"})
	if err := ftyp.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode moov: %w", err)
	}
	if len(samples) == 0 {
		return buf.Bytes(), nil
	}

	frag, err := mp4.CreateFragment(1, 1)
	if err != nil {
		return nil, fmt.Errorf("create fragment: %w", err)
	}
	for i, nal := range samples {
		data := LengthPrefixed(nal)
		flags := mp4.NonSyncSampleFlags
		if len(nal) > 0 && nal[0]&0x1F == 5 {
			flags = mp4.SyncSampleFlags
		}
		frag.AddFullSample(mp4.FullSample{
			Sample:     mp4.Sample{Flags: flags, Size: uint32(len(data)), Dur: 3000},
			DecodeTime: uint64(i) * 3000,
			Data:       data,
		})
	}
	if err := frag.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode fragment: %w", err)
	}
	return buf.Bytes(), nil
}

// AudioOnly returns an mp4 init segment without a video track.
func AudioOnly() ([]byte, error) {
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(48000, "audio", "und")

	var buf bytes.Buffer
	if err := init.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LengthPrefixed prepends a 4-byte big endian length to nal.
func LengthPrefixed(nal []byte) []byte {
	b := make([]byte, 4, 4+len(nal))
	binary.BigEndian.PutUint32(b, uint32(len(nal)))
	return append(b, nal...)
}

// AnnexB joins NAL units with 4-byte start codes.
func AnnexB(nals ...[]byte) []byte {
	var b []byte
	for _, n := range nals {
		b = append(b, 0, 0, 0, 1)
		b = append(b, n...)
	}
	return b
}
