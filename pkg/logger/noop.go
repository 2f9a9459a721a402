package logger

var discard Logger = noOpLogger{}

type noOpLogger struct{}

func NewNoOp() Logger {
	return discard
}

func (noOpLogger) Debug(string, ...any) {}
func (noOpLogger) Info(string, ...any)  {}
func (noOpLogger) Warn(string, ...any)  {}
func (noOpLogger) Error(string, ...any) {}
func (noOpLogger) Fatal(string, ...any) {}
func (n noOpLogger) With(...any) Logger { return n }
