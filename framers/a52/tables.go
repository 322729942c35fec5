package a52

// bsid values distinguishing the two header families this framer
// understands (§6 "A/52 bit layout consumed").
const (
	bsidAC3  = 8
	bsidEAC3 = 16
)

var syncWord = []byte{0x0b, 0x77}

// frameSizeTab is the standard ATSC A/52 frame-size table: frame size
// in 16-bit words, indexed [frmsizecod][fscod] (fscod 0 = 48kHz, 1 =
// 44.1kHz, 2 = 32kHz). The two rows per bitrate step differ only for
// 44.1kHz, which needs an extra word every other frame to make the
// average rate exact.
var frameSizeTab = [38][3]uint16{
	{64, 69, 96}, {64, 70, 96},
	{80, 87, 120}, {80, 88, 120},
	{96, 104, 144}, {96, 105, 144},
	{112, 121, 168}, {112, 122, 168},
	{128, 139, 192}, {128, 140, 192},
	{160, 174, 240}, {160, 175, 240},
	{192, 208, 288}, {192, 209, 288},
	{224, 243, 336}, {224, 244, 336},
	{256, 278, 384}, {256, 279, 384},
	{320, 348, 480}, {320, 349, 480},
	{384, 417, 576}, {384, 418, 576},
	{448, 487, 672}, {448, 488, 672},
	{512, 557, 768}, {512, 558, 768},
	{640, 696, 960}, {640, 697, 960},
	{768, 835, 1152}, {768, 836, 1152},
	{896, 975, 1344}, {896, 976, 1344},
	{1024, 1114, 1536}, {1024, 1115, 1536},
	{1152, 1253, 1728}, {1152, 1254, 1728},
	{1280, 1393, 1920}, {1280, 1394, 1920},
}

// bitrateTab is the AC-3 nominal bitrate in kbit/s, indexed by
// frmsizecod >> 1.
var bitrateTab = [19]uint16{
	32, 40, 48, 56, 64, 80, 96, 112, 128,
	160, 192, 224, 256, 320, 384, 448, 512, 576, 640,
}

func fscod(header []byte) int     { return int(header[4]>>6) & 0x3 }
func frmsizecod(header []byte) int { return int(header[4]) & 0x3f }
func bsid(header []byte) int      { return int(header[5]>>3) & 0x1f }
func frmsiz(header []byte) int {
	return (int(header[2]&0x07) << 8) | int(header[3])
}

// frameSizeAC3 looks up the frame size (in octets) for an AC-3 header,
// reporting false if fscod/frmsizecod lie outside the table.
func frameSizeAC3(fs, fc int) (octets int, ok bool) {
	if fs < 0 || fs > 2 || fc < 0 || fc >= len(frameSizeTab) {
		return 0, false
	}
	return int(frameSizeTab[fc][fs]) * 2, true
}

// frameSizeEAC3 computes the E-AC-3 frame size (in octets) from the
// 11-bit frmsiz field (§6: "(frmsiz + 1) * 2 octets").
func frameSizeEAC3(fz int) int { return (fz + 1) * 2 }

// octetrateAC3 returns the AC-3 nominal octet rate for a given
// frmsizecod.
func octetrateAC3(fc int) uint64 {
	idx := fc >> 1
	if idx < 0 || idx >= len(bitrateTab) {
		return 0
	}
	return uint64(bitrateTab[idx]) * 1000 / 8
}
