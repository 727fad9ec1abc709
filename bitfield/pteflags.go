package bitfield

// PTEFlags mirrors a page-table entry's flag bits (§6's bit-exact layout)
// as a struct cmd/memviz can format without importing the paging package's
// hot-path PTE type directly — a diagnostic-only decode, never used on the
// mapping fast path.
type PTEFlags struct {
	Present      bool   `bitfield:",1"`
	Writable     bool   `bitfield:",1"`
	User         bool   `bitfield:",1"`
	WriteThrough bool   `bitfield:",1"`
	CacheDisable bool   `bitfield:",1"`
	Accessed     bool   `bitfield:",1"`
	Dirty        bool   `bitfield:",1"`
	Huge         bool   `bitfield:",1"`
	Global       bool   `bitfield:",1"`
	System       bool   `bitfield:",1"`
	Window       bool   `bitfield:",1"`
	Reserved     uint32 `bitfield:",21"`
}

// PackPTEFlags packs a PTEFlags value into its low-12-bits-plus-System/
// Window-bits encoding, for tests and for round-tripping through
// UnpackPTEFlags.
func PackPTEFlags(f PTEFlags) (uint64, error) {
	return Pack(&f, &Config{NumBits: 32})
}

// UnpackPTEFlags decodes the flag bits out of a raw 64-bit page-table
// entry (the caller masks off the physical-address bits before or after;
// Unpack only looks at the bits the PTEFlags tags claim).
func UnpackPTEFlags(entry uint64) PTEFlags {
	var f PTEFlags
	_ = Unpack(entry, &f, &Config{NumBits: 32})
	return f
}
