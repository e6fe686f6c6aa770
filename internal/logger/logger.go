// Package logger предоставляет логирование с префиксом сервиса и асинхронной записью,
// чтобы не блокировать обработку запросов. Поддерживается логирование времени выполнения функций
// и запись в файл с ротацией (LOG_FILE).
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const asyncBufferSize = 8192

var (
	prefix   string
	logLevel = levelInfo
	ch       chan string
	once     sync.Once
	out      io.Writer = os.Stderr
	outMu    sync.Mutex
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(s string) level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func initWorker() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		logLevel = parseLevel(v)
	}
	if path := os.Getenv("LOG_FILE"); path != "" {
		setFile(path)
	}
	ch = make(chan string, asyncBufferSize)
	go func() {
		for msg := range ch {
			outMu.Lock()
			w := out
			outMu.Unlock()
			log.New(w, "", log.LstdFlags).Print(msg)
		}
	}()
}

func setFile(path string) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // MB
		MaxBackups: 5,
		MaxAge:     14, // дней
		Compress:   true,
	}
	outMu.Lock()
	out = io.MultiWriter(os.Stderr, lj)
	outMu.Unlock()
}

func enqueue(msg string) {
	once.Do(initWorker)
	select {
	case ch <- msg:
	default:
		// Буфер полон — не блокируем, теряем лог
	}
}

// SetPrefix задаёт префикс для всех последующих логов (например "auth").
func SetPrefix(p string) {
	prefix = p
}

// SetLevel переопределяет LOG_LEVEL (значение из конфига).
func SetLevel(s string) {
	once.Do(initWorker)
	logLevel = parseLevel(s)
}

// SetFile дублирует логи в файл с ротацией. Пустой путь — только stderr.
func SetFile(path string) {
	once.Do(initWorker)
	if path == "" {
		return
	}
	setFile(path)
}

func tag() string {
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

func enabled(l level) bool {
	return l >= logLevel
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	if !enabled(levelDebug) {
		return
	}
	enqueue(tag() + "DEBUG: " + fmt.Sprintf(format, v...))
}

// Info пишет в log с префиксом (асинхронно).
func Info(v ...any) {
	if !enabled(levelInfo) {
		return
	}
	enqueue(tag() + fmt.Sprint(v...))
}

// Infof форматирует и пишет с префиксом (асинхронно).
func Infof(format string, v ...any) {
	if !enabled(levelInfo) {
		return
	}
	enqueue(tag() + fmt.Sprintf(format, v...))
}

// Warnf — деградация без потери корректности (например, недоступен кеш).
func Warnf(format string, v ...any) {
	if !enabled(levelWarn) {
		return
	}
	enqueue(tag() + "WARN: " + fmt.Sprintf(format, v...))
}

// Error пишет ошибку с префиксом (асинхронно).
func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

// Errorf форматирует ошибку с префиксом (асинхронно).
func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// LogDuration логирует имя функции и время выполнения в миллисекундах (асинхронно).
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if logLevel == levelDebug || (enabled(levelInfo) && elapsed >= 100*time.Millisecond) {
		enqueue(fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
