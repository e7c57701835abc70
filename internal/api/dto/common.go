package dto

// Response 错误响应的统一封装，正常数据按契约裸返回
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}
