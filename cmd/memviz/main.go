// Command memviz renders two offline diagnostic PNGs from a physical
// memory map: a stacked bar showing the normalized region layout (§4.C,
// §4.D) and an indented outline of the identity-mapped kernel page-table
// tree (§4.D) with each present entry's flags decoded via
// bitfield.UnpackPTEFlags. Neither image is part of the kernel's own
// observable surface (§6); this is the same diagnostic-convenience role
// mazboot's gg_circle_qemu.go self-test played for its framebuffer, here
// retargeted from a live framebuffer to a file on disk.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/fogleman/gg"
	"golang.org/x/sys/unix"

	"monkos/addr"
	"monkos/bitfield"
	"monkos/cpu"
	"monkos/interrupt"
	"monkos/memmap"
	"monkos/pagedb"
	"monkos/paging"
)

func main() {
	dumpPath := flag.String("dump", "", "raw BIOS e820-formatted capture file to replay instead of the built-in sample map")
	out := flag.String("out", "memviz.png", "output PNG path")
	flag.Parse()

	var m *memmap.Map
	var err error
	if *dumpPath != "" {
		m, err = loadE820Dump(*dumpPath)
	} else {
		m = sampleMemoryMap()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "memviz: %v\n", err)
		os.Exit(1)
	}
	m.Normalize()

	frames, err := pagedb.New(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memviz: building page-frame database: %v\n", err)
		os.Exit(1)
	}
	engine := paging.NewEngine(frames, cpu.NewFake())
	engine.InitKernelRoot()
	kernelAS := engine.CreateAddressSpace(addr.VirtAddr(0xffff_ffff_0000_0000), 2<<20)
	buildIdentityMap(engine, m, kernelAS)

	const width, height = 1400, 1600
	ctx := gg.NewContext(width, height)
	ctx.SetRGB(1, 1, 1)
	ctx.Clear()

	ctx.SetRGB(0, 0, 0)
	ctx.DrawString("physical memory map", 20, 24)
	renderMemoryMap(ctx, m, 20, 40, width-40, 80)

	ctx.DrawString("kernel identity map (page-table tree)", 20, 170)
	treeBottom := renderPageTableTree(ctx, frames, kernelAS.PRoot, 20, 190, width-40)

	ports := cpu.NewFake()
	dispatcher := interrupt.NewDispatcher(ports)
	dispatcher.Init()
	dispatcher.IRQUnmask(interrupt.IRQKeyboard - interrupt.IRQBase)
	ctx.DrawString(fmt.Sprintf("PIC mask registers: master=%08b slave=%08b", dispatcher.MasterMask(), dispatcher.SlaveMask()), 20, treeBottom+20)

	if err := ctx.SavePNG(*out); err != nil {
		fmt.Fprintf(os.Stderr, "memviz: writing %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("memviz: wrote %s\n", *out)
}

// buildIdentityMap mirrors cmd/monkos's own region-to-page-size mapping
// (§4.E): the largest naturally aligned page size wins, and System plus
// the uncached-region cache-control bits come from the region's type.
func buildIdentityMap(engine *paging.Engine, m *memmap.Map, kernelAS *paging.AddressSpace) {
	for _, r := range m.Regions() {
		if r.Type == memmap.Unmapped || r.Type == memmap.Bad {
			continue
		}

		flags := paging.Present | paging.Writable | paging.System
		if r.Type == memmap.Uncached || r.Type == memmap.AcpiNvs {
			flags |= paging.WriteThrough | paging.CacheDisable
		}

		cur, end := r.Addr, r.End()
		for cur < end {
			remaining := end - cur
			switch {
			case cur%(1<<30) == 0 && remaining >= (1<<30):
				engine.MapHuge(kernelAS, addr.VirtAddr(cur), addr.PhysAddr(cur), flags)
				cur += 1 << 30
			case cur%(2<<20) == 0 && remaining >= (2<<20):
				engine.MapLarge(kernelAS, addr.VirtAddr(cur), addr.PhysAddr(cur), flags)
				cur += 2 << 20
			default:
				engine.Map(kernelAS, addr.VirtAddr(cur), addr.PhysAddr(cur), flags)
				cur += 4096
			}
		}
	}
}

// sampleMemoryMap is a small, deliberately QEMU-shaped memory layout
// (a null guard page, a low-RAM hole around the EBDA, ACPI tables, an
// uncached MMIO-like window, and a top reserved region) used when -dump
// is not given, so memviz always has something illustrative to render.
func sampleMemoryMap() *memmap.Map {
	m := memmap.New()
	m.Add(0x0000_0000, 0x0000_1000, memmap.Unmapped)
	m.Add(0x0000_1000, 0x0009_e000, memmap.Usable)
	m.Add(0x0009_f000, 0x0000_1000, memmap.Reserved)
	m.Add(0x0010_0000, 0x006f_0000, memmap.Usable)
	m.Add(0x007f_0000, 0x0001_0000, memmap.AcpiReclaim)
	m.Add(0x0080_0000, 0x0001_0000, memmap.AcpiNvs)
	m.Add(0x0081_0000, 0x001f_0000, memmap.Uncached)
	m.Add(0x00a0_0000, 0x0060_0000, memmap.Reserved)
	return m
}

// e820RecordSize is the Linux e820entry on-disk layout memviz's -dump
// flag replays: a 64-bit base, a 64-bit length, and a 32-bit type, padded
// to 24 bytes.
const e820RecordSize = 24

// loadE820Dump mmaps a raw capture file of back-to-back e820 records and
// converts each into a memmap.Region. e820 type codes follow the BIOS
// convention: 1 usable, 2 reserved, 3 ACPI reclaimable, 4 ACPI NVS,
// 5 bad RAM; anything else is treated as Reserved.
func loadE820Dump(path string) (*memmap.Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening e820 dump: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat e820 dump: %w", err)
	}
	size := info.Size()
	if size == 0 || size%e820RecordSize != 0 {
		return nil, fmt.Errorf("e820 dump %s is not a multiple of the %d-byte record size", path, e820RecordSize)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap e820 dump: %w", err)
	}
	defer unix.Munmap(data)

	m := memmap.New()
	for off := 0; off < len(data); off += e820RecordSize {
		rec := data[off : off+e820RecordSize]
		base := binary.LittleEndian.Uint64(rec[0:8])
		length := binary.LittleEndian.Uint64(rec[8:16])
		typ := binary.LittleEndian.Uint32(rec[16:20])
		m.Add(base, length, e820Type(typ))
	}
	return m, nil
}

func e820Type(raw uint32) memmap.Type {
	switch raw {
	case 1:
		return memmap.Usable
	case 3:
		return memmap.AcpiReclaim
	case 4:
		return memmap.AcpiNvs
	case 5:
		return memmap.Bad
	default:
		return memmap.Reserved
	}
}

func regionColor(t memmap.Type) (r, g, b float64) {
	switch t {
	case memmap.Usable:
		return 0.35, 0.70, 0.35
	case memmap.AcpiReclaim:
		return 0.55, 0.55, 0.85
	case memmap.AcpiNvs:
		return 0.85, 0.65, 0.30
	case memmap.Uncached:
		return 0.80, 0.40, 0.75
	case memmap.Reserved:
		return 0.65, 0.65, 0.65
	case memmap.Bad:
		return 0.85, 0.20, 0.20
	default: // Unmapped
		return 0.15, 0.15, 0.15
	}
}

// renderMemoryMap draws a single stacked bar where each region's width is
// proportional to its byte span, annotated with its type and size.
func renderMemoryMap(ctx *gg.Context, m *memmap.Map, x, y, w, h float64) {
	regions := m.Regions()
	if len(regions) == 0 {
		return
	}
	total := regions[len(regions)-1].End()
	if total == 0 {
		return
	}

	cur := x
	for _, r := range regions {
		segW := float64(r.Size) / float64(total) * w
		cr, cg, cb := regionColor(r.Type)
		ctx.SetRGB(cr, cg, cb)
		ctx.DrawRectangle(cur, y, segW, h)
		ctx.Fill()
		ctx.SetRGB(0, 0, 0)
		ctx.DrawRectangle(cur, y, segW, h)
		ctx.Stroke()
		cur += segW
	}

	legendY := y + h + 16
	for i, r := range regions {
		cr, cg, cb := regionColor(r.Type)
		ctx.SetRGB(cr, cg, cb)
		ctx.DrawRectangle(x, legendY+float64(i)*16, 10, 10)
		ctx.Fill()
		ctx.SetRGB(0, 0, 0)
		ctx.DrawString(fmt.Sprintf("%#010x +%#x %s", r.Addr, r.Size, r.Type), x+16, legendY+float64(i)*16+9)
	}
}

// addrMask pulls the physical frame address out of a raw PTE; paging's own
// copy of this mask is unexported, so memviz keeps its own (same bits,
// §6's layout: bits 12..51).
const addrMask = 0x000ffffffffff000

// levelName labels a page-table level for the tree outline: 4 is PML4, 1
// is the leaf PT.
func levelName(level int) string {
	switch level {
	case 4:
		return "PML4"
	case 3:
		return "PDPT"
	case 2:
		return "PD"
	default:
		return "PT"
	}
}

func levelColor(level int) (r, g, b float64) {
	switch level {
	case 4:
		return 0.25, 0.35, 0.85
	case 3:
		return 0.25, 0.65, 0.35
	case 2:
		return 0.85, 0.55, 0.20
	default:
		return 0.80, 0.25, 0.25
	}
}

// renderPageTableTree walks the table rooted at root, drawing one
// indented line per present entry with a level-colored swatch and its
// decoded PTEFlags. Leaf entries (level 1, or any Huge entry at level 2
// or 3) are not descended into further. It returns the y coordinate just
// past the last line drawn, so callers can place further content below it.
func renderPageTableTree(ctx *gg.Context, frames *pagedb.DB, root addr.PhysAddr, x, y, w float64) float64 {
	cury := y
	var walk func(p addr.PhysAddr, level, depth int)
	walk = func(p addr.PhysAddr, level, depth int) {
		bytes := frames.Bytes(p)
		for i := 0; i < 512; i++ {
			raw := binary.LittleEndian.Uint64(bytes[i*8 : i*8+8])
			if raw&1 == 0 { // Present bit
				continue
			}
			flags := bitfield.UnpackPTEFlags(raw)
			entryAddr := addr.PhysAddr(raw & addrMask)

			indent := x + float64(depth)*18
			cr, cg, cb := levelColor(level)
			ctx.SetRGB(cr, cg, cb)
			ctx.DrawRectangle(indent, cury-8, 10, 10)
			ctx.Fill()
			ctx.SetRGB(0, 0, 0)
			ctx.DrawString(fmt.Sprintf("%s[%d] -> %#010x  w=%v u=%v huge=%v sys=%v",
				levelName(level), i, entryAddr, flags.Writable, flags.User, flags.Huge, flags.System),
				indent+16, cury)
			cury += 14

			if level > 1 && !flags.Huge {
				walk(entryAddr, level-1, depth+1)
			}
		}
	}
	walk(root, 4, 0)
	return cury
}
