package router

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"seckill/internal/cache"
	"seckill/internal/config"
	"seckill/internal/middleware"
	"seckill/internal/model"
	"seckill/internal/seckill"
	"seckill/internal/store"
)

// Setup 注册全部 HTTP 路由。
// 路由层只是薄壳：解析参数、取出请求者身份、把结果码映射成响应，
// 所有业务语义都在 seckill/cache/store 里。
func Setup(r *gin.Engine, st *store.Store, c *cache.Cache, svc *seckill.Service, gate *seckill.Gate, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Voucher
	r.POST("/api/voucher", createVoucher(st))
	r.POST("/api/voucher/preload/:id", preloadVoucher(svc, cfg.PreloadAdminToken))
	r.GET("/api/voucher/stock/:id", voucherStock(gate))
	r.POST("/api/voucher/seckill/:id", middleware.RequireUser(), seckillVoucher(svc))

	// Order
	r.GET("/api/order/:id", middleware.RequireUser(), getOrder(st))

	// Shop（热点读走逻辑过期缓存）
	r.GET("/api/shop/:id", getShop(st, c, cfg.ShopCacheTTL))
	r.PUT("/api/shop/:id", updateShop(st, c))
}

// createVoucher 新建秒杀券（含时间窗校验）。
func createVoucher(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Title     string `json:"title" binding:"required"`
			Stock     int64  `json:"stock" binding:"required,min=1"`
			BeginTime string `json:"begin_time" binding:"required"`
			EndTime   string `json:"end_time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		begin, err := time.Parse(time.RFC3339, req.BeginTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "begin_time 格式错误，请用 RFC3339"})
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "end_time 格式错误，请用 RFC3339"})
			return
		}
		if !end.After(begin) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "end_time 必须晚于 begin_time"})
			return
		}
		v := &model.Voucher{
			Title:     req.Title,
			Stock:     req.Stock,
			BeginTime: begin,
			EndTime:   end,
		}
		if err := st.CreateVoucher(c.Request.Context(), v); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": v})
	}
}

// preloadVoucher 将 DB 库存预热到 Redis，供高并发准入。
// 该接口要求简单管理员 token，避免被任意调用重置库存。
func preloadVoucher(svc *seckill.Service, adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != adminToken {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token 无效"})
			return
		}
		id, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "券ID无效"})
			return
		}
		if err := svc.Preload(c.Request.Context(), id); err != nil {
			if errors.Is(err, seckill.ErrVoucherNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "优惠券不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "预热成功"})
	}
}

// voucherStock 查询 Redis 中的实时库存。
func voucherStock(gate *seckill.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "券ID无效"})
			return
		}
		stock, err := gate.Stock(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"stock": stock}})
	}
}

// seckillVoucher 秒杀下单入口，业务性拒绝一律 400 + 中文提示。
func seckillVoucher(svc *seckill.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		voucherID, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "券ID无效"})
			return
		}
		userID := middleware.UserID(c)

		orderID, res, err := svc.Seckill(c.Request.Context(), voucherID, userID)
		if err != nil {
			switch {
			case errors.Is(err, seckill.ErrVoucherNotFound):
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "优惠券不存在"})
			case errors.Is(err, seckill.ErrNotStarted):
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "秒杀尚未开始"})
			case errors.Is(err, seckill.ErrEnded):
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "秒杀已经结束"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			}
			return
		}

		switch res {
		case seckill.AdmitSuccess:
			// 落库是异步的，返回订单 id 供查询
			c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"order_id": orderID}})
		case seckill.AdmitInsufficientStock:
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "库存不足"})
		case seckill.AdmitDuplicateOrder:
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "不能重复下单"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "unknown admission result"})
		}
	}
}

// getOrder 查询异步落库结果：订单未出现视为仍在处理中。
func getOrder(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "订单ID无效"})
			return
		}
		order, err := st.GetOrder(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if order == nil {
			c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"status": "pending", "order_id": id}})
			return
		}
		if order.UserID != middleware.UserID(c) {
			c.JSON(http.StatusForbidden, gin.H{"code": 403, "msg": "无权查看该订单"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"status": "created", "order": order}})
	}
}

// getShop 商铺查询，逻辑过期策略：过期也立即返回旧值，后台异步刷新。
func getShop(st *store.Store, ch *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "商铺ID无效"})
			return
		}
		shop, err := cache.QueryWithLogicalExpire(c.Request.Context(), ch, "shop", id, ttl, st.GetShop)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "店铺不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": shop})
	}
}

// updateShop 更新商铺：先写库，再删缓存。
func updateShop(st *store.Store, ch *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "商铺ID无效"})
			return
		}
		var shop model.Shop
		if err := c.ShouldBindJSON(&shop); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		shop.ID = id
		if err := st.SaveShop(c.Request.Context(), &shop); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if err := ch.Evict(c.Request.Context(), "shop", id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "更新成功"})
	}
}

func parseID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
