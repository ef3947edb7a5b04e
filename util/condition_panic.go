package util

import "fmt"

// PanicIf panic when cond is true, used for invalid construction arguments;
// runtime failures are returned as errors instead
func PanicIf(cond bool, format string, v ...interface{}) {
	if !cond {
		return
	}
	panic(fmt.Errorf(format, v...))
}

// PanicIfErr panic when err is not nil
func PanicIfErr(err error, format string, v ...interface{}) {
	if err == nil {
		return
	}
	panic(fmt.Errorf("err:%v, "+format, append([]interface{}{err}, v...)...))
}
