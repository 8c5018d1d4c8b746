package rbac

// 权限常量
const (
	// 普通操作权限
	PermissionProjectWrite = "project:write"
	PermissionProjectRead  = "project:read"
	PermissionLedgerRead   = "ledger:read"
	PermissionLedgerWrite  = "ledger:approve"

	// 敏感操作权限
	PermissionLedgerMint   = "ledger:mint"
	PermissionOutboxReplay = "outbox:replay"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionProjectWrite,
		PermissionProjectRead,
		PermissionLedgerRead,
		PermissionLedgerWrite,
	},
	RoleAdmin: {
		PermissionProjectWrite,
		PermissionProjectRead,
		PermissionLedgerRead,
		PermissionLedgerWrite,
		PermissionLedgerMint,
		PermissionOutboxReplay,
	},
}

// NormalizeRole maps unknown or empty roles to RoleUser.
func NormalizeRole(role string) string {
	if _, ok := rolePermissions[role]; ok {
		return role
	}
	return RoleUser
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions: " + e.Permission
}
