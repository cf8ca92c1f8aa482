package models

// Capability names an operation that is granted per role.
type Capability string

const (
	CapCreateOrder    Capability = "order:create"
	CapCancelOrder    Capability = "order:cancel"
	CapRateOrder      Capability = "order:rate"
	CapPayOrder       Capability = "order:pay"
	CapConfirmOrder   Capability = "order:confirm"
	CapAssignOrder    Capability = "order:assign"
	CapUpdateStatus   Capability = "order:update_status"
	CapRefundOrder    Capability = "order:refund"
	CapViewAllOrders  Capability = "order:view_all"
	CapViewStats      Capability = "order:stats"
	CapListRepairmen  Capability = "user:list_repairmen"
	CapManageUsers    Capability = "user:manage"
	CapSimulatePaying Capability = "payment:simulate"
)

var roleCapabilities = map[Role][]Capability{
	RoleUser: {
		CapCreateOrder, CapCancelOrder, CapRateOrder, CapPayOrder, CapSimulatePaying,
	},
	RoleRepairman: {
		CapUpdateStatus,
	},
	RoleCustomerService: {
		CapCreateOrder, CapCancelOrder, CapConfirmOrder, CapAssignOrder, CapRefundOrder,
		CapViewAllOrders, CapViewStats, CapListRepairmen, CapSimulatePaying,
	},
	RoleAdmin: {
		CapCreateOrder, CapCancelOrder, CapConfirmOrder, CapAssignOrder, CapRefundOrder,
		CapViewAllOrders, CapViewStats, CapListRepairmen, CapManageUsers, CapSimulatePaying,
	},
}

var capabilityIndex = func() map[Role]map[Capability]bool {
	idx := make(map[Role]map[Capability]bool, len(roleCapabilities))
	for role, caps := range roleCapabilities {
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			set[c] = true
		}
		idx[role] = set
	}
	return idx
}()

// Can reports whether the role is granted the capability.
func (r Role) Can(c Capability) bool {
	return capabilityIndex[r][c]
}

// RolesWith lists every role granted the capability, in a stable order.
func RolesWith(c Capability) []Role {
	var out []Role
	for _, r := range []Role{RoleUser, RoleRepairman, RoleCustomerService, RoleAdmin} {
		if r.Can(c) {
			out = append(out, r)
		}
	}
	return out
}
