package domain

// HourWindow is an inclusive range of UTC hours that may wrap past midnight.
type HourWindow struct {
	Low  int
	High int
}

// NewHourWindow centers a window of ±width hours on hour.
func NewHourWindow(hour, width int) HourWindow {
	return HourWindow{
		Low:  mod24(hour - width),
		High: mod24(hour + width),
	}
}

// Contains reports whether hour falls inside the window.
func (w HourWindow) Contains(hour int) bool {
	if w.Low <= w.High {
		return hour >= w.Low && hour <= w.High
	}
	return hour >= w.Low || hour <= w.High
}

// Hours lists the hours inside the window in ascending order.
func (w HourWindow) Hours() []int {
	var hours []int
	for h := 0; h < 24; h++ {
		if w.Contains(h) {
			hours = append(hours, h)
		}
	}
	return hours
}

func mod24(h int) int {
	h %= 24
	if h < 0 {
		h += 24
	}
	return h
}
