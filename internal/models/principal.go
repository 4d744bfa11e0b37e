package models

// Principal is the authenticated caller of a request
type Principal struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsAdmin    bool   `json:"is_admin"`
	IsVerified bool   `json:"is_verified"`
}

// Room is the realtime room the principal joins
func (p *Principal) Room() string {
	if p.IsAdmin {
		return RoomAdmins
	}
	return UserRoom(p.ID)
}

// CanAccessOrder reports whether p may act on the order. Admins see every
// order, owners see their own, and guest orders are reachable by whoever
// holds the order id.
func (p *Principal) CanAccessOrder(o *Order) bool {
	if p != nil && p.IsAdmin {
		return true
	}
	if o.UserID == nil {
		return true
	}
	return p != nil && o.OwnedBy(p.ID)
}
