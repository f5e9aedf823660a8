package redis

import "fmt"

// OrderLockKey 用户下单互斥锁，秒杀入口的快速去重过滤。
func OrderLockKey(userID int64) string {
	return fmt.Sprintf("lock:order:%d", userID)
}

// LockKey 统一约定资源级分布式锁键名（如 lock:shop:1）。
func LockKey(resourceType string, id int64) string {
	return fmt.Sprintf("lock:%s:%d", resourceType, id)
}

// CacheKey 统一约定实体缓存键名（如 cache:shop:1）。
func CacheKey(resourceType string, id int64) string {
	return fmt.Sprintf("cache:%s:%d", resourceType, id)
}

// StockKey 秒杀券的实时库存计数。
func StockKey(voucherID int64) string {
	return fmt.Sprintf("seckill:stock:%d", voucherID)
}

// OrderedUsersKey 记录某张券已下单的用户集合，一人一单去重用。
func OrderedUsersKey(voucherID int64) string {
	return fmt.Sprintf("seckill:order:%d", voucherID)
}

// IDCounterKey 全局 ID 生成器的按天自增计数器。
func IDCounterKey(prefix, day string) string {
	return fmt.Sprintf("icr:%s:%s", prefix, day)
}
