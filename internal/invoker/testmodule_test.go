package invoker

// tinyModule returns the smallest valid wasm module satisfying the
// guest ABI's shape: one page of exported memory and an exported
// "handle" function taking the ABI's ten i32 parameters, always
// returning 0 (an empty response). See internal/pool's identical
// fixture for the byte-level layout notes.
func tinyModule() []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,

		0x01, 0x0f,
		0x01,
		0x60, 0x0a,
		0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f,
		0x01, 0x7f,

		0x03, 0x02,
		0x01, 0x00,

		0x05, 0x04,
		0x01, 0x01, 0x01, 0x01,

		0x07, 0x13,
		0x02,
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
		0x06, 'h', 'a', 'n', 'd', 'l', 'e', 0x00, 0x00,

		0x0a, 0x06,
		0x01,
		0x04, 0x00, 0x41, 0x00, 0x0b,
	}
}
