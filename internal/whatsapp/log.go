package whatsapp

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// waLogger routes whatsmeow's internal logging through logrus
type waLogger struct {
	entry *logrus.Entry
	level logrus.Level
}

func newWALogger(logger *logrus.Logger, module, level string) waLog.Logger {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.ErrorLevel
	}
	return &waLogger{entry: logger.WithField("module", module), level: lvl}
}

func (l *waLogger) log(level logrus.Level, msg string, args []interface{}) {
	if level > l.level {
		return
	}
	l.entry.Log(level, fmt.Sprintf(msg, args...))
}

func (l *waLogger) Errorf(msg string, args ...interface{}) { l.log(logrus.ErrorLevel, msg, args) }
func (l *waLogger) Warnf(msg string, args ...interface{})  { l.log(logrus.WarnLevel, msg, args) }
func (l *waLogger) Infof(msg string, args ...interface{})  { l.log(logrus.InfoLevel, msg, args) }
func (l *waLogger) Debugf(msg string, args ...interface{}) { l.log(logrus.DebugLevel, msg, args) }

func (l *waLogger) Sub(module string) waLog.Logger {
	parent, _ := l.entry.Data["module"].(string)
	return &waLogger{entry: l.entry.WithField("module", parent+"/"+module), level: l.level}
}
