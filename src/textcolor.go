package malamute

// A lightweight reimplementation of Dire Wolf's textcolor.c

import "fmt"

type dw_color_e int

const (
	DW_COLOR_INFO  dw_color_e = iota /* default */
	DW_COLOR_ERROR                   /* red */
	DW_COLOR_DEBUG                   /* dark green */
)

var _text_color_level int

func text_color_init(level int) {
	_text_color_level = level
}

func text_color_set(c dw_color_e) {
	if _text_color_level == 0 {
		return
	}

	switch c {
	case DW_COLOR_ERROR:
		fmt.Print("\033[31m")
	case DW_COLOR_DEBUG:
		fmt.Print("\033[32m")
	default:
		fmt.Print("\033[0m")
	}
}
