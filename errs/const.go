package errs

const (
	ErrCode_OK            = 0
	ErrCode_Unknown       = 1
	ErrCode_Unmarshal     = 2
	ErrCode_Marshal       = 3
	ErrCode_Configuration = 10 // 注册、启动阶段的配置错误
	ErrCode_Schema        = 11 // 模型字段无法映射为protobuf类型
	ErrCode_Validation    = 12 // 请求/响应模型校验失败
	ErrCode_Internal      = 13
)

var (
	Unknown       = CreateCodeError(ErrCode_Unknown, "UNKNOWN")
	Unmarshal     = CreateCodeError(ErrCode_Unmarshal, "UNMARSHAL")
	Marshal       = CreateCodeError(ErrCode_Marshal, "MARSHAL")
	Configuration = CreateCodeError(ErrCode_Configuration, "CONFIGURATION")
	Schema        = CreateCodeError(ErrCode_Schema, "SCHEMA")
	Validation    = CreateCodeError(ErrCode_Validation, "VALIDATION")
	Internal      = CreateCodeError(ErrCode_Internal, "INTERNAL")
)
