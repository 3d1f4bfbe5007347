package logicalfile

import (
	"github.com/trmeister/fulltext2/pkg/ftlerr"
	"github.com/trmeister/fulltext2/pkg/lob"
)

// Locator is the random-access handle spec.md §4.8's getLocator returns
// for LOB-resident values: get(pos,len)/append/replace(pos,data)/
// truncate(len)/length, all with 1-based positions at the API boundary
// per spec.md ("Positions are 1-based at the API boundary").
type Locator struct {
	store *lob.Store
	id    lob.ObjectID
}

// Length returns the value's current byte length.
func (l *Locator) Length() (int, error) {
	b, err := l.store.Get(l.id)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Get returns at most length bytes starting at the 1-based position
// pos.
func (l *Locator) Get(pos, length int) ([]byte, error) {
	if pos < 1 {
		return nil, ftlerr.New(ftlerr.BadArgument, "locator.get", nil)
	}
	b, err := l.store.Get(l.id)
	if err != nil {
		return nil, err
	}
	start := pos - 1
	if start >= len(b) {
		return nil, nil
	}
	end := start + length
	if end > len(b) || length < 0 {
		end = len(b)
	}
	return b[start:end], nil
}

// Append adds data to the end of the value.
func (l *Locator) Append(data []byte) error {
	return l.store.Append(l.id, data)
}

// Replace overwrites length(data) bytes starting at the 1-based
// position pos, extending the value if the replacement runs past its
// current end.
func (l *Locator) Replace(pos int, data []byte) error {
	if pos < 1 {
		return ftlerr.New(ftlerr.BadArgument, "locator.replace", nil)
	}
	cur, err := l.store.Get(l.id)
	if err != nil {
		return err
	}
	start := pos - 1
	end := start + len(data)
	n := end
	if len(cur) > n {
		n = len(cur)
	}
	out := make([]byte, n)
	if start <= len(cur) {
		copy(out, cur[:start])
	} else {
		copy(out, cur)
	}
	copy(out[start:end], data)
	if end < len(cur) {
		copy(out[end:], cur[end:])
	}
	return l.store.Replace(l.id, out)
}

// Truncate shortens the value to length bytes.
func (l *Locator) Truncate(length int) error {
	return l.store.Truncate(l.id, length)
}
