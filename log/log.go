package log

func Debugf(format string, args ...any) {
	logger.Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	logger.Info().Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	logger.Warn().Msgf(format, args...)
}

func Errorf(format string, args ...any) {
	logger.Error().Msgf(format, args...)
}

func Panicf(format string, args ...any) {
	logger.Panic().Msgf(format, args...)
}

func PanicError(err error) {
	logger.Panic().Msg(err.Error())
}
