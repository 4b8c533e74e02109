// Package logger — единый вывод логов tc-ntp с префиксом, учётом quiet и debug.
package logger

import "log"

const prefix = "tc-ntp: "

// Quiet при true отключает информационные сообщения (Info); Error выводится всегда.
var Quiet bool

// Debug при true включает отладочные сообщения сессии (resolve, отправка, ответ, повторы).
var Debug bool

// Info выводит сообщение с префиксом "tc-ntp: ", если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Printf(prefix+format, args...)
}

// Debugf выводит отладочное сообщение, только если Debug == true.
func Debugf(format string, args ...interface{}) {
	if !Debug {
		return
	}
	log.Printf(prefix+format, args...)
}

// Error выводит сообщение об ошибке с префиксом "tc-ntp: " всегда.
func Error(format string, args ...interface{}) {
	log.Printf(prefix+format, args...)
}
