/*
clistdump inspects a command-list index+payload file pair.

Usage:

	clistdump [flags]

It prints the page's band count, every index record (band range and payload
offset), the resource-table pseudo-bands (ICC profile count, color usage per
band), and a per-band disassembly of the replayed opcode stream.

Flags:

	-c
	    path to the payload file (cfile)
	-b
	    path to the index file (bfile)
	-bands
	    the page's band count, as recorded by the writer (required; the
	    index file doesn't carry it, since pseudo-band offsets are derived
	    from it rather than stored alongside it)
	-params
	    instead of dumping a page, parse the given parameter-list text and
	    print it back out in canonical form, to round trip it before feeding
	    it through EXT_PUT_PARAMS

Example:

	clistdump -c page.cfile -b page.bfile -bands 12
	clistdump -params '<< /Resolution 600 /Colors [/Cyan /Magenta] >>'
*/
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/bandspool/clist/opcode"
	"github.com/bandspool/clist/paramsyntax"
	"github.com/bandspool/clist/reader"
)

var (
	cflagPath  = flag.String("c", "", "path to the payload file (cfile)")
	bflagPath  = flag.String("b", "", "path to the index file (bfile)")
	bandsFlag  = flag.Int("bands", 0, "the page's band count")
	paramsFlag = flag.String("params", "", "parse and reprint a parameter-list string instead of dumping a page")
)

func main() {
	if err := main1(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func main1() error {
	flag.Parse()

	if *paramsFlag != "" {
		return dumpParams(*paramsFlag)
	}
	if *cflagPath == "" || *bflagPath == "" {
		return errors.New("clistdump: -c and -b are required unless -params is given")
	}
	if *bandsFlag <= 0 {
		return errors.New("clistdump: -bands must be a positive band count")
	}
	return dumpPage(*cflagPath, *bflagPath, int32(*bandsFlag))
}

func dumpParams(src string) error {
	l, err := paramsyntax.Parse([]byte(src))
	if err != nil {
		return fmt.Errorf("clistdump: parsing params: %w", err)
	}
	os.Stdout.Write(paramsyntax.Format(l))
	os.Stdout.WriteString("\n")
	return nil
}

func dumpPage(cpath, bpath string, numBands int32) error {
	cfile, err := os.Open(cpath)
	if err != nil {
		return err
	}
	defer cfile.Close()

	idx, err := os.ReadFile(bpath)
	if err != nil {
		return err
	}

	r, err := reader.New(idx, cfile, numBands)
	if err != nil {
		return fmt.Errorf("clistdump: %w", err)
	}

	fmt.Printf("bands: %d\n", r.NumBands())
	fmt.Printf("icc profiles: %d\n", r.NumICCProfiles())
	fmt.Println()

	fmt.Println("index records:")
	for _, rec := range r.Records() {
		if rec.EndOfPage() {
			fmt.Printf("  end-of-page @ %d\n", rec.PayloadOffset)
			continue
		}
		kind := "band"
		if rec.BandMin >= numBands {
			kind = "pseudo-band"
		}
		fmt.Printf("  [%d,%d] (%s) @ %d\n", rec.BandMin, rec.BandMax, kind, rec.PayloadOffset)
	}
	fmt.Println()

	for b := int32(0); b < numBands; b++ {
		blocks, err := r.ReplayBand(b)
		if err != nil {
			return fmt.Errorf("clistdump: replaying band %d: %w", b, err)
		}
		usage := r.ColorUsage(b)
		fmt.Printf("band %d: %d command blocks, or_mask=%#x, slow_rop=%v\n", b, len(blocks), usage.OrMask, usage.SlowROP)
		for i, blk := range blocks {
			fmt.Printf("  block %d: %s\n", i, disassemble(blk))
		}
	}
	return nil
}

// disassemble renders every byte of a command block as an opcode mnemonic,
// space-separated on one line, for a quick eyeball of what a band contains.
// It does not parse operand payloads (rectangle deltas, tile indices, image
// data), so operand bytes are named as if they were opcodes too.
func disassemble(blk []byte) string {
	var b bytes.Buffer
	for i := 0; i < len(blk); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(opcode.Name(blk[i]))
	}
	if b.Len() == 0 {
		return "(empty)"
	}
	return b.String()
}
