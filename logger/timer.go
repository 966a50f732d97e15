package logger

import "time"

type Timer struct {
	StartTime time.Time
	Name      string
	Console   *Console
}

// End logs the elapsed time, rounded to milliseconds.
func (t *Timer) End() time.Duration {
	d := time.Since(t.StartTime)
	t.Console.Info("%s completed in %v", t.Name, d.Round(time.Millisecond))
	return d
}
