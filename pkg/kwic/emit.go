package kwic

import "strings"

// emitWindow renders the final snippet for window w: tag spans around
// every match intersecting it, original-text escaping, and ellipsis on
// sides that don't touch the source edge or a sentence break, per
// spec.md §4.7's emission step. origin maps a normalized rune index to
// a byte offset into source, so tags are placed without disturbing the
// untouched original text (pre-fold, pre-NFC) between them.
func emitWindow(source string, origin []int, matches []Match, w window, startTag, endTag string, escape Escape, ellipsis string) string {
	spans := clipAndMergeSpans(matches, w.start, w.end)

	var b strings.Builder
	if !w.suppressHead {
		b.WriteString(ellipsis)
	}

	pos := w.start
	emit := func(from, to int) {
		if from >= to {
			return
		}
		b.WriteString(escapeText(sliceOriginal(source, origin, from, to), escape))
	}
	for _, sp := range spans {
		emit(pos, sp.start)
		b.WriteString(startTag)
		emit(sp.start, sp.end)
		b.WriteString(endTag)
		pos = sp.end
	}
	emit(pos, w.end)

	if !w.suppressTail {
		b.WriteString(ellipsis)
	}
	return b.String()
}

type span struct{ start, end int }

// clipAndMergeSpans restricts matches to [winStart,winEnd), clips
// partial overlaps to the window, and merges overlapping or adjacent
// spans so tags never nest.
func clipAndMergeSpans(matches []Match, winStart, winEnd int) []span {
	var spans []span
	for _, m := range matches {
		s, e := m.Start, m.End
		if e <= winStart || s >= winEnd {
			continue
		}
		if s < winStart {
			s = winStart
		}
		if e > winEnd {
			e = winEnd
		}
		spans = append(spans, span{s, e})
	}
	if len(spans) == 0 {
		return nil
	}
	// insertion sort by start; match counts per window are small.
	for i := 1; i < len(spans); i++ {
		j := i
		for j > 0 && spans[j-1].start > spans[j].start {
			spans[j-1], spans[j] = spans[j], spans[j-1]
			j--
		}
	}
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}

func sliceOriginal(source string, origin []int, from, to int) string {
	if from >= to {
		return ""
	}
	start := origin[from]
	var end int
	if to < len(origin) {
		end = origin[to]
	} else {
		end = len(source)
	}
	return source[start:end]
}

func escapeText(s string, mode Escape) string {
	if mode != EscapeHTML {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
