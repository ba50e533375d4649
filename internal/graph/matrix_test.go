package graph

import (
	"errors"
	"testing"

	"github.com/smazurov/audionode/internal/format"
)

// fakeObject is a minimal graph node for matrix tests.
type fakeObject struct {
	id      string
	typ     ObjectType
	fmt     format.Format
	fmtSet  bool
	added   int
	removed int
}

func (f *fakeObject) ID() string                    { return f.id }
func (f *fakeObject) ObjectType() ObjectType        { return f.typ }
func (f *fakeObject) Format() (format.Format, bool) { return f.fmt, f.fmtSet }
func (f *fakeObject) OnLinkAdded(*Link)             { f.added++ }
func (f *fakeObject) OnLinkRemoved(*Link)           { f.removed++ }

func newFake(id string, typ ObjectType) *fakeObject {
	return &fakeObject{
		id:     id,
		typ:    typ,
		fmt:    format.Format{SampleFormat: format.Float32, Channels: 2, FramesPerSecond: 48000},
		fmtSet: true,
	}
}

func TestLinkObjects(t *testing.T) {
	m := NewLinkMatrix(nil)
	r := newFake("r", TypeRenderer)
	o := newFake("o", TypeOutput)

	l, err := m.LinkObjects(r, o)
	if err != nil {
		t.Fatalf("LinkObjects: %v", err)
	}
	if l.Bookkeeping == nil || l.Bookkeeping.Mixer == nil {
		t.Fatal("output link missing mixer bookkeeping")
	}
	if !m.Linked(r, o) {
		t.Error("Linked(r, o) = false after linking")
	}
	if o.added != 1 {
		t.Errorf("dest OnLinkAdded calls = %d, want 1", o.added)
	}
	if m.LinkCount() != 1 {
		t.Errorf("LinkCount() = %d, want 1", m.LinkCount())
	}
}

func TestLinkObjectsDuplicate(t *testing.T) {
	m := NewLinkMatrix(nil)
	r := newFake("r", TypeRenderer)
	o := newFake("o", TypeOutput)

	if _, err := m.LinkObjects(r, o); err != nil {
		t.Fatal(err)
	}
	_, err := m.LinkObjects(r, o)
	if !errors.Is(err, ErrLinkExists) {
		t.Errorf("duplicate link error = %v, want ErrLinkExists", err)
	}
}

func TestLinkObjectsRequiresFormats(t *testing.T) {
	m := NewLinkMatrix(nil)
	r := newFake("r", TypeRenderer)
	r.fmtSet = false
	o := newFake("o", TypeOutput)

	if _, err := m.LinkObjects(r, o); !errors.Is(err, ErrFormatNotSet) {
		t.Errorf("link without source format: %v, want ErrFormatNotSet", err)
	}
	if m.LinkCount() != 0 {
		t.Error("failed link left residue")
	}
}

func TestLinkObjectsCapturerWithoutFormat(t *testing.T) {
	// Capture-side links tolerate missing formats; the capturer converts
	// on read.
	m := NewLinkMatrix(nil)
	in := newFake("in", TypeInput)
	c := newFake("c", TypeCapturer)
	c.fmtSet = false

	l, err := m.LinkObjects(in, c)
	if err != nil {
		t.Fatalf("LinkObjects: %v", err)
	}
	if l.Bookkeeping.Mixer != nil {
		t.Error("capture link with unset format grew a mixer")
	}
}

func TestUnlink(t *testing.T) {
	m := NewLinkMatrix(nil)
	r1 := newFake("r1", TypeRenderer)
	r2 := newFake("r2", TypeRenderer)
	o := newFake("o", TypeOutput)

	if _, err := m.LinkObjects(r1, o); err != nil {
		t.Fatal(err)
	}
	if _, err := m.LinkObjects(r2, o); err != nil {
		t.Fatal(err)
	}
	if got := m.SourceLinkCount(o); got != 2 {
		t.Fatalf("SourceLinkCount(o) = %d, want 2", got)
	}

	m.Unlink(r1)
	if m.Linked(r1, o) {
		t.Error("r1 still linked after Unlink")
	}
	if !m.Linked(r2, o) {
		t.Error("Unlink(r1) removed r2's link")
	}
	if r1.removed != 1 || o.removed != 1 {
		t.Errorf("OnLinkRemoved calls = r1:%d o:%d, want 1 and 1", r1.removed, o.removed)
	}
}

func TestUnlinkPair(t *testing.T) {
	m := NewLinkMatrix(nil)
	r := newFake("r", TypeRenderer)
	o1 := newFake("o1", TypeOutput)
	o2 := newFake("o2", TypeOutput)

	m.LinkObjects(r, o1)
	m.LinkObjects(r, o2)

	m.UnlinkPair(r, o1)
	if m.Linked(r, o1) {
		t.Error("pair still linked after UnlinkPair")
	}
	if !m.Linked(r, o2) {
		t.Error("UnlinkPair removed the wrong link")
	}
}

func TestLinkSnapshots(t *testing.T) {
	m := NewLinkMatrix(nil)
	r := newFake("r", TypeRenderer)
	o := newFake("o", TypeOutput)
	m.LinkObjects(r, o)

	// Mutating mid-enumeration must not affect the snapshot.
	var seen int
	m.ForEachSourceLink(o, func(l *Link) {
		seen++
		m.Unlink(r)
	})
	if seen != 1 {
		t.Errorf("enumerated %d links, want 1", seen)
	}
	if m.LinkCount() != 0 {
		t.Error("Unlink inside enumeration did not take effect")
	}
}
