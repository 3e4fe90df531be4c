package pool

// tinyModule returns the smallest valid wasm module that satisfies
// the guest ABI's shape: one exported page of memory and an exported
// "handle" function taking the ABI's ten i32 parameters and always
// returning 0 (an empty response). It has no meaningful logic; it
// exists so pool/invoker tests can compile and instantiate a real
// module without depending on an external build step.
func tinyModule() []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version

		// type section: one func type, (i32 x10) -> i32
		0x01, 0x0f,
		0x01,
		0x60, 0x0a,
		0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f,
		0x01, 0x7f,

		// function section: function 0 uses type 0
		0x03, 0x02,
		0x01, 0x00,

		// memory section: one memory, min=max=1 page
		0x05, 0x04,
		0x01, 0x01, 0x01, 0x01,

		// export section: "memory" (mem 0), "handle" (func 0)
		0x07, 0x13,
		0x02,
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
		0x06, 'h', 'a', 'n', 'd', 'l', 'e', 0x00, 0x00,

		// code section: function body `i32.const 0; end`
		0x0a, 0x06,
		0x01,
		0x04, 0x00, 0x41, 0x00, 0x0b,
	}
}
