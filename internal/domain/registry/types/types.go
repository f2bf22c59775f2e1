package types

// ApplicationType 应用类型
type ApplicationType string

const (
	ApplicationTypeServer          ApplicationType = "Server"
	ApplicationTypeClient          ApplicationType = "Client"
	ApplicationTypeClientAndServer ApplicationType = "ClientAndServer"
	ApplicationTypeDiscoveryServer ApplicationType = "DiscoveryServer"
)

// ApplicationInfoModel registry 中登记的应用
type ApplicationInfoModel struct {
	ApplicationID       string            `json:"applicationId"`
	ApplicationType     ApplicationType   `json:"applicationType,omitempty"`
	ApplicationURI      string            `json:"applicationUri"`
	ProductURI          string            `json:"productUri,omitempty"`
	ApplicationName     string            `json:"applicationName,omitempty"`
	Locale              string            `json:"locale,omitempty"`
	LocalizedNames      map[string]string `json:"localizedNames,omitempty"`
	DiscoveryProfileURI string            `json:"discoveryProfileUri,omitempty"`
	DiscoveryURLs       []string          `json:"discoveryUrls,omitempty"`
	SiteID              string            `json:"siteId,omitempty"`
}

// EndpointModel 端点连接信息
type EndpointModel struct {
	URL                   string   `json:"url"`
	AlternativeURLs       []string `json:"alternativeUrls,omitempty"`
	SecurityMode          string   `json:"securityMode,omitempty"` // e.g., "SignAndEncrypt"
	SecurityPolicy        string   `json:"securityPolicy,omitempty"`
	Certificate           []byte   `json:"certificate,omitempty"`
	CertificateThumbprint string   `json:"certificateThumbprint,omitempty"`
}

// EndpointInfoModel 应用下的端点记录
type EndpointInfoModel struct {
	ID            string         `json:"id"`
	ApplicationID string         `json:"applicationId,omitempty"`
	Endpoint      *EndpointModel `json:"endpoint,omitempty"`
	SecurityLevel *int32         `json:"securityLevel,omitempty"`
}

// ApplicationRegistrationModel 应用及其端点
type ApplicationRegistrationModel struct {
	Application *ApplicationInfoModel `json:"application"`
	Endpoints   []EndpointInfoModel   `json:"endpoints,omitempty"`
}

// ApplicationRegistrationQueryModel 应用查询条件
type ApplicationRegistrationQueryModel struct {
	ApplicationURI  string          `json:"applicationUri,omitempty"`
	ApplicationType ApplicationType `json:"applicationType,omitempty"`
	ApplicationName string          `json:"applicationName,omitempty"`
	ProductURI      string          `json:"productUri,omitempty"`
	SiteOrGatewayID string          `json:"siteOrGatewayId,omitempty"`
}

// ApplicationInfoListModel 分页的应用列表
type ApplicationInfoListModel struct {
	Items             []ApplicationInfoModel `json:"items"`
	ContinuationToken string                 `json:"continuationToken,omitempty"`
}
