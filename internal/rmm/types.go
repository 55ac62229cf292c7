package rmm

// DevicesStatus summarizes device counts for an account or site.
type DevicesStatus struct {
	NumberOfDevices        int `json:"numberOfDevices"`
	NumberOfOnlineDevices  int `json:"numberOfOnlineDevices"`
	NumberOfOfflineDevices int `json:"numberOfOfflineDevices"`
}

// AccountDescriptor carries account-level settings.
type AccountDescriptor struct {
	BillingEmail string `json:"billingEmail,omitempty"`
	DeviceLimit  *int   `json:"deviceLimit,omitempty"`
	TimeZone     string `json:"timeZone,omitempty"`
}

// Account is the authenticated Datto RMM account.
type Account struct {
	ID            int                `json:"id"`
	UID           string             `json:"uid"`
	Name          string             `json:"name"`
	Currency      string             `json:"currency,omitempty"`
	Descriptor    *AccountDescriptor `json:"descriptor,omitempty"`
	DevicesStatus *DevicesStatus     `json:"devicesStatus,omitempty"`
}

// PageDetails describes one page of a list response.
type PageDetails struct {
	Count       int    `json:"count"`
	TotalCount  int    `json:"totalCount,omitempty"`
	PrevPageURL string `json:"prevPageUrl,omitempty"`
	NextPageURL string `json:"nextPageUrl,omitempty"`
}

// HasMore reports whether a following page exists.
func (p PageDetails) HasMore() bool {
	return p.NextPageURL != ""
}

// Site is a customer site grouping devices.
type Site struct {
	ID            int            `json:"id"`
	UID           string         `json:"uid"`
	AccountUID    string         `json:"accountUid,omitempty"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	OnDemand      bool           `json:"onDemand"`
	PortalURL     string         `json:"portalUrl,omitempty"`
	DevicesStatus *DevicesStatus `json:"devicesStatus,omitempty"`
}

// SitesPage is a page of sites.
type SitesPage struct {
	PageDetails PageDetails `json:"pageDetails"`
	Sites       []Site      `json:"sites"`
}

// DeviceType classifies a device.
type DeviceType struct {
	Category string `json:"category,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Device is a managed endpoint.
type Device struct {
	ID              int         `json:"id"`
	UID             string      `json:"uid"`
	SiteID          int         `json:"siteId,omitempty"`
	SiteUID         string      `json:"siteUid,omitempty"`
	SiteName        string      `json:"siteName,omitempty"`
	Hostname        string      `json:"hostname"`
	Description     string      `json:"description,omitempty"`
	OperatingSystem string      `json:"operatingSystem,omitempty"`
	IntIPAddress    string      `json:"intIpAddress,omitempty"`
	ExtIPAddress    string      `json:"extIpAddress,omitempty"`
	Online          bool        `json:"online"`
	Suspended       bool        `json:"suspended,omitempty"`
	Deleted         bool        `json:"deleted,omitempty"`
	LastSeen        int64       `json:"lastSeen,omitempty"` // Unix milliseconds
	DeviceType      *DeviceType `json:"deviceType,omitempty"`
}

// DevicesPage is a page of devices.
type DevicesPage struct {
	PageDetails PageDetails `json:"pageDetails"`
	Devices     []Device    `json:"devices"`
}
