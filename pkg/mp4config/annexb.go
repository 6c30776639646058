package mp4config

import "fmt"

// ExtractParameterSets returns the first SPS and PPS found in an Annex-B stream.
func ExtractParameterSets(data []byte) (sps, pps []byte, err error) {
	for _, nalu := range SplitAnnexB(data) {
		if len(nalu) == 0 {
			continue
		}
		switch nalu[0] & 0x1F {
		case nalTypeSPS:
			if sps == nil {
				sps = append([]byte(nil), nalu...)
			}
		case nalTypePPS:
			if pps == nil {
				pps = append([]byte(nil), nalu...)
			}
		}
		if sps != nil && pps != nil {
			return sps, pps, nil
		}
	}

	if sps == nil {
		return nil, nil, fmt.Errorf("%w: SPS not found", ErrMissingParameterSets)
	}
	return nil, nil, fmt.Errorf("%w: PPS not found", ErrMissingParameterSets)
}

// SplitAnnexB splits an Annex-B byte stream on 3 and 4 byte start codes.
func SplitAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	start := 0
	i := 0

	for i < len(data) {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 {
			codeLen := 0
			if data[i+2] == 1 {
				codeLen = 3
			} else if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
				codeLen = 4
			}

			if codeLen > 0 {
				if i > start {
					nalus = append(nalus, data[start:i])
				}
				i += codeLen
				start = i
				continue
			}
		}
		i++
	}

	if start < len(data) {
		nalus = append(nalus, data[start:])
	}
	return nalus
}
