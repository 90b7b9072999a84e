package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row of buttons. Empty rows are skipped.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Grid appends buttons wrapped into rows of at most cols buttons.
func (i *Inline) Grid(cols int, btn ...tele.Btn) *Inline {
	if cols <= 0 {
		cols = 1
	}
	for len(btn) > 0 {
		n := cols
		if n > len(btn) {
			n = len(btn)
		}
		i.Row(btn[:n]...)
		btn = btn[n:]
	}
	return i
}

// Rows returns the number of rows added so far.
func (i *Inline) Rows() int { return len(i.rows) }

// Markup returns underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data (not encoded).
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}
