package middleware

import (
	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	Guard gin.HandlerFunc // 非空时挂在 handler 前
}

// 封装 POST
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.Guard != nil {
		r.POST(path, opt.Guard, handler)
	} else {
		r.POST(path, handler)
	}
}

// 封装 GET
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.Guard != nil {
		r.GET(path, opt.Guard, handler)
	} else {
		r.GET(path, handler)
	}
}
