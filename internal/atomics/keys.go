package atomics

import "strconv"

func smaKey(k int) string    { return "sma_" + strconv.Itoa(k) }
func emaKey(k int) string    { return "ema_" + strconv.Itoa(k) }
func medianKey(k int) string { return "median_" + strconv.Itoa(k) }
func minKey(k int) string    { return "min_" + strconv.Itoa(k) }
func maxKey(k int) string    { return "max_" + strconv.Itoa(k) }
func stddevKey(k int) string { return "stddev_" + strconv.Itoa(k) }
