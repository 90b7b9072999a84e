package router

import (
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/lifecycle"
	"remindbot/internal/selection"
	"remindbot/pkg/tgui"
)

// Callback scopes and actions.
const (
	scopeRemind   = "remind"
	scopeSettings = "settings"

	actDay    = "day"
	actPeriod = "period"
	actHour   = "hour"
	actCancel = "cancel"
	actMsg    = "msg"
	actList   = "list"
	actDel    = "del"
)

const hoursPerRow = 4

func daysKeyboard() *tele.ReplyMarkup {
	kb := tgui.NewInline()
	var row []tele.Btn
	cur := 0
	for _, g := range selection.DayGroups() {
		if g.Row != cur {
			kb.Row(row...)
			row, cur = nil, g.Row
		}
		row = append(row, tgui.Btn(g.Label, tgui.Data(scopeRemind, actDay, g.Key)))
	}
	kb.Row(row...)
	kb.Row(cancelBtn())
	return kb.Markup()
}

func periodKeyboard() *tele.ReplyMarkup {
	kb := tgui.NewInline()
	var row []tele.Btn
	cur := 0
	for _, p := range selection.Periods() {
		if p.Row != cur {
			kb.Row(row...)
			row, cur = nil, p.Row
		}
		row = append(row, tgui.Btn(p.Label, tgui.Data(scopeRemind, actPeriod, p.Key)))
	}
	kb.Row(row...)
	kb.Row(cancelBtn())
	return kb.Markup()
}

func hourKeyboard(labels []string) *tele.ReplyMarkup {
	btns := make([]tele.Btn, 0, len(labels))
	for _, l := range labels {
		btns = append(btns, tgui.Btn(l, tgui.Data(scopeRemind, actHour, l)))
	}
	return tgui.NewInline().Grid(hoursPerRow, btns...).Row(cancelBtn()).Markup()
}

func cancelBtn() tele.Btn { return tgui.Btn(btnCancel, tgui.Data(scopeRemind, actCancel, "")) }

func settingsKeyboard() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn(btnChangeMessage, tgui.Data(scopeSettings, actMsg, ""))).
		Row(tgui.Btn(btnDeleteList, tgui.Data(scopeSettings, actList, ""))).
		Markup()
}

// deleteKeyboard renders one "❌ <days> at <time>" button per reminder.
// Ids that would overflow callback data are left out.
func deleteKeyboard(entries []lifecycle.Entry) *tele.ReplyMarkup {
	kb := tgui.NewInline()
	for _, e := range entries {
		data, err := tgui.CheckedData(scopeSettings, actDel, e.Spec.ID.String())
		if err != nil {
			continue
		}
		label := e.Spec.Describe()
		if e.Corrupt {
			label = textUnreadable
		}
		kb.Row(tgui.Btn("❌ "+label, data))
	}
	return kb.Markup()
}
