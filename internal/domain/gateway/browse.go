package gateway

import (
	"context"
	"encoding/base64"

	"github.com/9triver/opcgw/internal/domain/gateway/diagnostics"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	twintypes "github.com/9triver/opcgw/internal/domain/twin/types"
	"github.com/awcullen/opcua/ua"
)

var nodeClasses = map[string]ua.NodeClass{
	"Object":        ua.NodeClassObject,
	"Variable":      ua.NodeClassVariable,
	"Method":        ua.NodeClassMethod,
	"ObjectType":    ua.NodeClassObjectType,
	"VariableType":  ua.NodeClassVariableType,
	"ReferenceType": ua.NodeClassReferenceType,
	"DataType":      ua.NodeClassDataType,
	"View":          ua.NodeClassView,
}

// Browse 逐项调用后端 browse first
func (s *Server) Browse(ctx context.Context, ch *types.Channel, req *ua.BrowseRequest) (*BrowseResponse, error) {
	return serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeBrowse,
		func(rc *types.RequestContext, _ collaborators) (*BrowseResponse, error) {
			if err := requireItems(len(req.NodesToBrowse)); err != nil {
				return nil, err
			}
			header := backendHeader(rc)
			failed := ua.BrowseResult{StatusCode: ua.BadNodeIDInvalid}
			results, infos := dispatch(s, rc, req.NodesToBrowse, failed,
				func(ctx context.Context, twinID string, item ua.BrowseDescription) (ua.BrowseResult, *diagnostics.Info, error) {
					resp, err := s.twin.NodeBrowseFirst(ctx, twinID, &twintypes.BrowseFirstRequestModel{
						Header:                header,
						NodeID:                FormatNodeID(item.NodeID),
						Direction:             browseDirection(item.BrowseDirection),
						ReferenceTypeID:       FormatNodeID(item.ReferenceTypeID),
						NoSubtypes:            !item.IncludeSubtypes,
						MaxReferencesToReturn: req.RequestedMaxReferencesPerNode,
						NodeClassMask:         item.NodeClassMask,
					})
					if err != nil {
						return failed, nil, err
					}
					status, info := diagnostics.FromBackend(resp.ErrorInfo, rc.DiagnosticsMask, rc.StringTable)
					return browseResult(status, resp.References, resp.ContinuationToken, info)
				})
			return batchResponse(s, rc, results, infos), nil
		})
}

// BrowseNext 按续浏览点继续浏览，ReleaseContinuationPoints 对应后端 abort
func (s *Server) BrowseNext(ctx context.Context, ch *types.Channel, req *ua.BrowseNextRequest) (*BrowseNextResponse, error) {
	return serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeBrowseNext,
		func(rc *types.RequestContext, _ collaborators) (*BrowseNextResponse, error) {
			if err := requireItems(len(req.ContinuationPoints)); err != nil {
				return nil, err
			}
			header := backendHeader(rc)
			failed := ua.BrowseResult{StatusCode: ua.BadContinuationPointInvalid}
			results, infos := dispatch(s, rc, req.ContinuationPoints, failed,
				func(ctx context.Context, twinID string, cp ua.ByteString) (ua.BrowseResult, *diagnostics.Info, error) {
					resp, err := s.twin.NodeBrowseNext(ctx, twinID, &twintypes.BrowseNextRequestModel{
						Header:            header,
						ContinuationToken: base64.StdEncoding.EncodeToString([]byte(cp)),
						Abort:             req.ReleaseContinuationPoints,
					})
					if err != nil {
						return failed, nil, err
					}
					status, info := diagnostics.FromBackend(resp.ErrorInfo, rc.DiagnosticsMask, rc.StringTable)
					return browseResult(status, resp.References, resp.ContinuationToken, info)
				})
			return batchResponse(s, rc, results, infos), nil
		})
}

func browseResult(status ua.StatusCode, refs []twintypes.NodeReferenceModel, token string, info *diagnostics.Info) (ua.BrowseResult, *diagnostics.Info, error) {
	result := ua.BrowseResult{
		StatusCode: status,
		References: make([]ua.ReferenceDescription, 0, len(refs)),
	}
	if token != "" {
		cp, err := base64.StdEncoding.DecodeString(token)
		if err != nil {
			return result, nil, NewServiceError(ua.BadContinuationPointInvalid, err)
		}
		result.ContinuationPoint = ua.ByteString(cp)
	}
	for _, ref := range refs {
		result.References = append(result.References, referenceDescription(ref))
	}
	return result, info, nil
}

func referenceDescription(ref twintypes.NodeReferenceModel) ua.ReferenceDescription {
	rd := ua.ReferenceDescription{
		ReferenceTypeID: ParseNodeID(ref.ReferenceTypeID),
		IsForward:       ref.Direction != twintypes.BrowseDirectionBackward,
		NodeClass:       ua.NodeClassUnspecified,
	}
	if target := ref.Target; target != nil {
		rd.NodeID = ua.ExpandedNodeID{NodeID: ParseNodeID(target.NodeID)}
		rd.BrowseName = ParseQualifiedName(target.BrowseName)
		rd.DisplayName = ua.LocalizedText{Text: target.DisplayName}
		if nc, ok := nodeClasses[target.NodeClass]; ok {
			rd.NodeClass = nc
		}
		if target.TypeDefinition != "" {
			rd.TypeDefinition = ua.ExpandedNodeID{NodeID: ParseNodeID(target.TypeDefinition)}
		}
	}
	return rd
}

func browseDirection(d ua.BrowseDirection) twintypes.BrowseDirection {
	switch d {
	case ua.BrowseDirectionInverse:
		return twintypes.BrowseDirectionBackward
	case ua.BrowseDirectionBoth:
		return twintypes.BrowseDirectionBoth
	}
	return twintypes.BrowseDirectionForward
}
