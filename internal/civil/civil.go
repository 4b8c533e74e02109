// Package civil переводит 32-битную метку времени NTP в календарную дату и время
// с учётом смещения часового пояса.
//
// Разложение дней на циклы 400/100/4/1 лет ведётся от 1 марта 2000 года: февраль
// оказывается последним месяцем внутреннего года, и високосный день не требует
// отдельной проверки при поиске дня месяца (как __secs_to_tm в musl).
package civil

import "time"

// leapoch — секунды NTP (от 1900-01-01) до 2000-03-01 00:00:00 UTC.
const leapoch = 2208988800 + 946684800 + 86400*(31+29)

const (
	secsPerDay  = 86400
	daysPer400Y = 365*400 + 97
	daysPer100Y = 365*100 + 24
	daysPer4Y   = 365*4 + 1

	// 2000-03-01 — среда.
	originWeekday = 3
	originYear    = 2000
)

// Длины месяцев начиная с марта; февраль последний.
var daysInMonth = [12]int64{31, 30, 31, 30, 31, 31, 30, 31, 30, 31, 31, 29}

// DateTime — календарные поля одного момента времени.
type DateTime struct {
	Year    int
	Month   time.Month // 1–12
	Date    int        // 1–31
	Weekday time.Weekday
	Hour    int
	Min     int
	Sec     int
	YearDay int  // 0–365, 0 = 1 января
	Leap    bool // високосный год по григорианскому правилу
}

// MonthName возвращает английское название месяца ("January"…).
func (d DateTime) MonthName() string {
	return d.Month.String()
}

// DayName возвращает английское название дня недели ("Sunday"…).
func (d DateTime) DayName() string {
	return d.Weekday.String()
}

// Convert раскладывает секунды NTP эры 0 плюс смещение пояса в календарные поля.
// Смещение прибавляется: tzHours*3600 + tzMinutes*60. Ошибок нет: любое значение
// uint32 даёт корректную дату.
func Convert(raw uint32, tzHours int8, tzMinutes uint8) DateTime {
	secs := int64(raw) + int64(tzHours)*3600 + int64(tzMinutes)*60 - leapoch

	days := secs / secsPerDay
	remSecs := secs % secsPerDay
	if remSecs < 0 {
		remSecs += secsPerDay
		days--
	}

	wday := (originWeekday + days) % 7
	if wday < 0 {
		wday += 7
	}

	qcCycles := days / daysPer400Y
	remDays := days % daysPer400Y
	if remDays < 0 {
		remDays += daysPer400Y
		qcCycles--
	}

	cCycles := remDays / daysPer100Y
	if cCycles == 4 {
		cCycles--
	}
	remDays -= cCycles * daysPer100Y

	qCycles := remDays / daysPer4Y
	if qCycles == 25 {
		qCycles--
	}
	remDays -= qCycles * daysPer4Y

	remYears := remDays / 365
	if remYears == 4 {
		remYears--
	}
	remDays -= remYears * 365

	leap := remYears == 0 && (qCycles != 0 || cCycles == 0)

	// День года, считая от 1 января: внутренний год начинается 1 марта.
	var leapDay int64
	if leap {
		leapDay = 1
	}
	yday := remDays + 31 + 28 + leapDay
	if yday >= 365+leapDay {
		yday -= 365 + leapDay
	}

	years := remYears + 4*qCycles + 100*cCycles + 400*qcCycles

	month := 0
	for daysInMonth[month] <= remDays {
		remDays -= daysInMonth[month]
		month++
	}

	monthNum := month + 3
	if monthNum > 12 {
		monthNum -= 12
		years++
	}

	return DateTime{
		Year:    int(years) + originYear,
		Month:   time.Month(monthNum),
		Date:    int(remDays) + 1,
		Weekday: time.Weekday(wday),
		Hour:    int(remSecs / 3600),
		Min:     int(remSecs / 60 % 60),
		Sec:     int(remSecs % 60),
		YearDay: int(yday),
		Leap:    isLeap(int(years) + originYear),
	}
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
