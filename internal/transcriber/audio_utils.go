package transcriber

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// convertToWAV wraps raw mono 16-bit PCM at sampleRate in a RIFF/WAVE header
func convertToWAV(rawAudio []byte, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	var buf bytes.Buffer

	const channels = 1
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	const blockAlign = channels * bitsPerSample / 8

	dataSize := len(rawAudio)
	fileSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))            // fmt chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))             // PCM format
	binary.Write(&buf, binary.LittleEndian, uint16(channels))      // number of channels
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))    // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))      // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))    // block align
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample)) // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(rawAudio)

	return buf.Bytes(), nil
}

// Downsample decimates samples from inputRate to outputRate by block averaging:
// output sample i is the mean of factor consecutive input samples. A factor of one or
// less returns the input unchanged; a non-integer factor is an error.
func Downsample(samples []int16, inputRate, outputRate int) ([]int16, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", inputRate, outputRate)
	}
	if inputRate <= outputRate {
		return samples, nil
	}
	if inputRate%outputRate != 0 {
		return nil, fmt.Errorf("cannot decimate %d Hz to %d Hz: rate ratio is not an integer", inputRate, outputRate)
	}
	factor := inputRate / outputRate

	out := make([]int16, len(samples)/factor)
	for i := range out {
		var sum int64
		for _, s := range samples[i*factor : (i+1)*factor] {
			sum += int64(s)
		}
		out[i] = int16(sum / int64(factor))
	}
	return out, nil
}

// downsamplePCM is Downsample over little-endian byte buffers.
func downsamplePCM(pcm []byte, inputRate, outputRate int) ([]byte, error) {
	out, err := Downsample(bytesToSamples(pcm), inputRate, outputRate)
	if err != nil {
		return nil, err
	}
	return samplesToBytes(out), nil
}

func bytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
