package pesd

// Mandatory PES header layout (ISO/IEC 13818-1 §2.4.3.6): start code,
// stream_id, PES_packet_length.
const headerSize = 6

// Optional header (§2.4.3.7): flags byte, PTS_DTS_flags byte,
// PES_header_data_length byte.
const optionalSize = 3

const (
	headerSizeNoPTS  = headerSize + optionalSize          // 9
	tsFieldSize      = 5                                  // one 33-bit PTS or DTS field
	headerSizePTS    = headerSizeNoPTS + tsFieldSize       // 14
	headerSizePTSDTS = headerSizeNoPTS + 2*tsFieldSize     // 19
)

// Stream IDs for which the optional header is absent entirely (ISO/IEC
// 13818-1 Table 2-18): the payload follows the mandatory header
// directly.
const (
	streamIDPSM      = 0xbc // program_stream_map
	streamIDPrivate2 = 0xbf // private_stream_2
	streamIDECM      = 0xf0
	streamIDEMM      = 0xf1
	streamIDDSMCC    = 0xf2
	streamIDPSD      = 0xff // program_stream_directory
	streamIDH222_1E  = 0xf8 // ITU-T Rec. H.222.1 type E

	streamIDPadding = 0xbe
)

// ExpectedFlowDef is the flow-definition prefix this manager's input
// must carry (§4.9: "block.mpegtspes.").
const ExpectedFlowDef = "block.mpegtspes."
