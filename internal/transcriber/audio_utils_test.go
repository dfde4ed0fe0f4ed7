package transcriber

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsample(t *testing.T) {
	tests := []struct {
		name    string
		in      []int16
		inRate  int
		outRate int
		want    []int16
		wantErr bool
	}{
		{name: "48k to 16k averages triples", in: []int16{3, 6, 9, -3, -6, -9, 1, 1}, inRate: 48000, outRate: 16000, want: []int16{6, -6}},
		{name: "same rate passthrough", in: []int16{1, 2, 3}, inRate: 16000, outRate: 16000, want: []int16{1, 2, 3}},
		{name: "upsample passthrough", in: []int16{1, 2}, inRate: 8000, outRate: 16000, want: []int16{1, 2}},
		{name: "non integer factor", in: []int16{1, 2, 3}, inRate: 44100, outRate: 16000, wantErr: true},
		{name: "invalid rate", in: []int16{1}, inRate: 0, outRate: 16000, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Downsample(tt.in, tt.inRate, tt.outRate)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDownsamplePCMKeepsExtremes(t *testing.T) {
	in := samplesToBytes([]int16{32767, 32767, 32767, -32768, -32768, -32768})
	out, err := downsamplePCM(in, 48000, 16000)
	require.NoError(t, err)
	assert.Equal(t, []int16{32767, -32768}, bytesToSamples(out))
}

func TestConvertToWAVHeader(t *testing.T) {
	pcm := make([]byte, 3200)
	wav, err := convertToWAV(pcm, 16000)
	require.NoError(t, err)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))

	_, err = convertToWAV(pcm, 0)
	assert.Error(t, err)
}
