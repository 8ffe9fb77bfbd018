package main

import (
	malamute "github.com/doismellburning/malamute/src"
)

func main() {
	malamute.MalamuteMain()
}
