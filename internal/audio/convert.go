package audio

import (
	"encoding/binary"
	"math"
)

const (
	int16Scale = 32768.0
	int32Scale = 2147483648.0
)

// PCM16ToFloat32 将小端 16-bit 有符号 PCM 字节转换为 [-1.0, 1.0) 范围的 float32。
// 末尾不足一个样本的字节被忽略。
func PCM16ToFloat32(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[2*i:]))) / int16Scale
	}
	return out
}

// PCM32ToFloat32 将小端 32-bit 有符号整数 PCM 字节转换为 float32。
func PCM32ToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(float64(int32(binary.LittleEndian.Uint32(b[4*i:]))) / int32Scale)
	}
	return out
}

// Float32LEToFloat32 将小端 IEEE-754 float32 字节直接解释为样本，不做缩放。
func Float32LEToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// DownmixStride 把交错的多声道样本降为单声道：每 channels 个样本只取第一个。
// 这不是真正的混音，右声道等其余声道被直接丢弃。
func DownmixStride(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, 0, (len(samples)+channels-1)/channels)
	for i := 0; i < len(samples); i += channels {
		out = append(out, samples[i])
	}
	return out
}

// Float32ToInt16 将 [-1.0, 1.0] 范围的 float32 样本转换为 PCM int16。
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		// 钳位到 [-1.0, 1.0]
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(math.Round(float64(s) * math.MaxInt16))
	}
	return out
}

// Int16ToBytes 将 int16 样本转换为小端字节切片。
func Int16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// Float32ToBytes 将 float32 样本直接转换为 16-bit 小端 PCM 字节（播放设备使用 S16 格式）。
func Float32ToBytes(in []float32) []byte {
	return Int16ToBytes(Float32ToInt16(in))
}

// int16StereoToMonoFloat32 将 int16 立体声 PCM 转换为单声道 float32（左右声道取平均）。
// go-mp3 固定输出立体声，只在 MP3 解码路径使用。
func int16StereoToMonoFloat32(data []byte) []float32 {
	numSamples := len(data) / 4
	if numSamples == 0 {
		return nil
	}
	samples := make([]float32, numSamples)

	for i := 0; i < numSamples; i++ {
		left := int16(binary.LittleEndian.Uint16(data[i*4:]))
		right := int16(binary.LittleEndian.Uint16(data[i*4+2:]))
		samples[i] = (float32(left) + float32(right)) / 65536.0
	}

	return samples
}
