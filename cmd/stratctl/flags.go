package main

import (
	"strconv"
	"strings"
)

// indicatorFlags collects repeated -i flags.
type indicatorFlags []string

func (f *indicatorFlags) String() string { return strings.Join(*f, " ") }

func (f *indicatorFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

// optionalFloat is a float flag that records whether it was given.
type optionalFloat struct{ v *float64 }

func (o *optionalFloat) String() string {
	if o.v == nil {
		return ""
	}
	return strconv.FormatFloat(*o.v, 'f', -1, 64)
}

func (o *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	o.v = &v
	return nil
}
