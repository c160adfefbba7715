package models

import "errors"

// 错误定义：调用方需要区分「输入非法」「无数据」「未知操作」三类结果
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNoData           = errors.New("no data")
	ErrUnknownOperation = errors.New("unknown operation")
)
